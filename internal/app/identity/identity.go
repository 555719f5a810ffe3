/*
Package identity contains the data structures describing an authenticated user.

It defines the public Summary carried in room participant lists and message
sender fields, and the full Identity record including the credential pair,
which only the session store may mutate.
*/
package identity

// Summary is the public portion of an identity, as it appears in participant
// lists, presence events, and message sender fields.
type Summary struct {
	// UID is the opaque identifier assigned by the external identity provider.
	UID string `json:"uid"`

	// DisplayName is the user's display name.
	DisplayName string `json:"displayName"`

	// PhotoURL references the user's avatar image.
	PhotoURL string `json:"photoURL,omitempty"`
}

// Identity is an authenticated user together with its credential pair.
type Identity struct {
	Summary

	// AccessToken is the short-lived credential attached to API requests.
	AccessToken string `json:"accessToken"`

	// RefreshToken is the longer-lived credential used to obtain a new access token.
	RefreshToken string `json:"refreshToken,omitempty"`
}

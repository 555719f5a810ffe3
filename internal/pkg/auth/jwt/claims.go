package jwt

import "github.com/golang-jwt/jwt"

// Token use markers distinguishing the two credentials of a pair.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims defines the JWT claims carried by chatlink credentials.
type Claims struct {
	// StandardClaims embeds the JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer), used for validity checks.
	jwt.StandardClaims

	// UID is the external identifier of the authenticated identity.
	UID string `json:"uid"`

	// Use marks whether this token is the access or the refresh credential.
	Use string `json:"use"`
}

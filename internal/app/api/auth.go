/*
Package api is the authenticated request/response client for the backing service.

This file wraps the identity-verification endpoint. The identity provider's
popup flow happens outside this process; what arrives here is the provider
token it produced.
*/
package api

import (
	"context"

	"chatlink/internal/app/identity"
	"chatlink/internal/pkg/errs"
)

// VerifyExternalToken exchanges an identity-provider token for a chatlink
// identity with its credential pair. It is the one unauthenticated call the
// gateway makes.
func (g *Gateway) VerifyExternalToken(ctx context.Context, idToken string) (identity.Identity, error) {
	if idToken == "" {
		return identity.Identity{}, errs.New(errs.ErrInvalidParams, "idToken is required")
	}

	var out struct {
		User identity.Identity `json:"user"`
	}

	err := g.Do(ctx, "POST", "auth/verify-firebase-token", map[string]string{"idToken": idToken}, &out)
	if err != nil {
		return identity.Identity{}, err
	}

	return out.User, nil
}

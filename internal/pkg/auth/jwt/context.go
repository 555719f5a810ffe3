/*
Package jwt provides helpers around the credential pair tokens.

This file carries the authenticated identity id through a request context.
*/
package jwt

import "context"

type contextKey struct{}

var uidKey contextKey

// WithUID returns a context carrying the authenticated identity id.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, uidKey, uid)
}

// UIDFrom returns the authenticated identity id from the context, empty when
// the request carried no valid credential.
func UIDFrom(ctx context.Context) string {
	uid, _ := ctx.Value(uidKey).(string)
	return uid
}

/*
Package jwt provides helpers around the credential pair tokens.

The client side only inspects tokens it holds (expiry, without verification,
since the signing secret lives on the backing service). The mint and verify
functions are used by the in-process stub backend.
*/
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// AccessExpiration is the lifetime of access credentials minted by the stub.
	AccessExpiration = 15 * time.Minute

	// RefreshExpiration is the lifetime of refresh credentials minted by the stub.
	RefreshExpiration = 24 * time.Hour

	// TokenIssuer identifies the issuer of stub-minted tokens.
	TokenIssuer = "chatlink-stub"
)

// Generate creates and signs a token for uid with the given use marker and lifetime.
func Generate(uid, use, secretKey string, duration time.Duration) (string, error) {
	now := time.Now()

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(duration).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    TokenIssuer,
		},
		UID: uid,
		Use: use,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secretKey))
}

// Parse validates the token string against secretKey and returns its claims.
func Parse(tokenString, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}

// ExpiryOf extracts the expiration time of a token without verifying its
// signature. The client holds no signing secret; expiry is only used to decide
// whether a proactive refresh is worthwhile, never for trust decisions.
// Tokens that are not parseable JWTs report ok=false and are treated as opaque.
func ExpiryOf(tokenString string) (time.Time, bool) {
	claims := &Claims{}

	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == 0 {
		return time.Time{}, false
	}

	return time.Unix(claims.ExpiresAt, 0), true
}

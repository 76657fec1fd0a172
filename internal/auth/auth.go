// Package auth verifies the bearer tokens presented on the authenticate
// event. The verification contract is identical to the REST API's auth
// middleware: HS256-signed JWTs carrying userId and roleId claims, checked
// against the shared platform secret.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Typed authentication errors. Callers treat all of them as terminal for the
// connection but may want to distinguish them for logging.
var (
	ErrMissingToken     = errors.New("auth: missing token")
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrExpiredToken     = errors.New("auth: token expired")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrInvalidClaims    = errors.New("auth: token claims missing user identity")
)

// Claims is the identity extracted from a verified token.
type Claims struct {
	UserID int64
	RoleID int64
}

// tokenClaims mirrors the claim names used by the REST login endpoint.
type tokenClaims struct {
	UserID int64 `json:"userId"`
	RoleID int64 `json:"roleId"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens with the shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the signature and expiry of a raw bearer token and returns
// the identity claims. Authentication is a one-shot gate per connection: on
// any error the caller must disconnect the socket rather than allow further
// events.
func (v *Verifier) Verify(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrMissingToken
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformedToken
		default:
			return Claims{}, fmt.Errorf("auth: token verification failed: %w", err)
		}
	}

	if claims.UserID <= 0 {
		return Claims{}, ErrInvalidClaims
	}

	return Claims{UserID: claims.UserID, RoleID: claims.RoleID}, nil
}

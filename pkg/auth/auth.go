// Package auth verifies callers of the media gateway. Token issuance lives
// with the account service; this side only validates.
package auth

import (
	"errors"
	"github.com/golang-jwt/jwt/v5"
	"net/http"
	"strings"
)

type Authenticator interface {
	Authenticate(r *http.Request) bool
}

type JWTCookie struct {
	secret     []byte
	cookieName string
}

func NewJWTCookie(secret, cookieName string) (*JWTCookie, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cookieName == "" {
		cookieName = "access_token"
	}
	return &JWTCookie{secret: []byte(secret), cookieName: cookieName}, nil
}

// Authenticate accepts an HS256 token from the access cookie, falling back
// to an Authorization bearer header. The token must carry a subject and
// an expiry in the future.
func (a *JWTCookie) Authenticate(r *http.Request) bool {
	raw := a.token(r)
	if raw == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return false
	}
	return claims.Subject != ""
}

func (a *JWTCookie) token(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// Func adapts a function to Authenticator.
type Func func(r *http.Request) bool

func (f Func) Authenticate(r *http.Request) bool {
	return f(r)
}

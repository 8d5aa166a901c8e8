package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTCookieAuthenticate(t *testing.T) {
	t.Parallel()

	a, err := NewJWTCookie(secret, "access_token")
	if err != nil {
		t.Fatal(err)
	}

	valid := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	noSubject := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	noExpiry := jwt.RegisteredClaims{Subject: "42"}

	tests := []struct {
		name   string
		cookie string
		header string
		want   bool
	}{
		{"valid cookie", sign(t, jwt.SigningMethodHS256, []byte(secret), valid), "", true},
		{"valid bearer", "", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), valid), true},
		{"no credentials", "", "", false},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(secret), expired), "", false},
		{"missing subject", sign(t, jwt.SigningMethodHS256, []byte(secret), noSubject), "", false},
		{"missing expiry", sign(t, jwt.SigningMethodHS256, []byte(secret), noExpiry), "", false},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), valid), "", false},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, []byte(secret), valid), "", false},
		{"garbage", "not-a-token", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/video/x/480p/index.m3u8", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := a.Authenticate(req); got != tt.want {
				t.Errorf("Authenticate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewJWTCookieRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewJWTCookie("", ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

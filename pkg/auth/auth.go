// Package auth guards the hub with a shared bearer token
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// HeaderName carries the token as "Bearer <token>"
const HeaderName = "Authorization"

var ErrInvalidToken = errors.New("invalid token")

// GenerateToken returns a random URL-safe token
func GenerateToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tokenBytes), nil
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateRequest checks the bearer token of r against token
func ValidateRequest(r *http.Request, token string) error {
	value := r.Header.Get(HeaderName)
	presented, ok := strings.CutPrefix(value, "Bearer ")
	if !ok || !SecureCompare(presented, token) {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects requests without the token, except for the paths in
// public. An empty token disables the check.
func Middleware(token string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if err := ValidateRequest(r, token); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="evtimings"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Transport adds the bearer token to every request sent through base
type Transport struct {
	Token string
	Base  http.RoundTripper
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	r = r.Clone(r.Context())
	r.Header.Set(HeaderName, "Bearer "+t.Token)
	return base.RoundTrip(r)
}

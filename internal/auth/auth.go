// Package auth resolves bearer tokens to identities, either by asking a hosted
// identity provider or against local development accounts.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Metadata is the free-form data a user supplied at sign-up.
type Metadata struct {
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	Mobile  string `json:"mobile,omitempty"`
	Address string `json:"address,omitempty"`
}

type Identity struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Metadata Metadata `json:"user_metadata"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

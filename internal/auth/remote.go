package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/safar/renew-path-trade/internal/apperr"
	"github.com/safar/renew-path-trade/internal/config"
)

// RemoteVerifier asks a hosted identity provider who a token belongs to.
type RemoteVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRemoteVerifier(cfg config.AuthConfig) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type remoteUser struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	UserMetadata Metadata `json:"user_metadata"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, apperr.External("identity provider", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Identity{}, apperr.Auth("invalid or expired token")
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Identity{}, apperr.External("identity provider",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var user remoteUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return Identity{}, apperr.External("identity provider", fmt.Errorf("decode user: %w", err))
	}
	if user.ID == "" {
		return Identity{}, apperr.Auth("token has no subject")
	}

	return Identity{ID: user.ID, Email: user.Email, Metadata: user.UserMetadata}, nil
}

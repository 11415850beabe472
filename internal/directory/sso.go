package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SSOResolver implements TokenResolver against the identity provider's token
// introspection endpoint.
type SSOResolver struct {
	baseURL string
	http    *http.Client
}

// NewSSOResolver creates a token resolver for the given SSO base URL.
func NewSSOResolver(baseURL string, opts ...Option) *SSOResolver {
	return &SSOResolver{
		baseURL: baseURL,
		http:    newHTTPClient(opts),
	}
}

var _ TokenResolver = (*SSOResolver)(nil)

// Username resolves the access token to the linked-account username.
func (r *SSOResolver) Username(ctx context.Context, accessToken string) (string, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", ErrTokenRejected
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/userinfo", nil)
	if err != nil {
		return "", fmt.Errorf("directory: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("directory: userinfo: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrTokenRejected
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("directory: userinfo: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Username string `json:"preferred_username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("directory: decode userinfo: %w", err)
	}
	if strings.TrimSpace(payload.Username) == "" {
		return "", ErrTokenRejected
	}
	return payload.Username, nil
}

package auth

import (
	"context"
	"fmt"

	"unilink.org/internal/directory"
)

// IdentityStep resolves the access token to the linked-account username. It
// must run first; every later step keys its directory lookups off the
// username this step fills in.
type IdentityStep struct {
	Resolver directory.TokenResolver
}

func (s IdentityStep) Name() string { return "identity" }

func (s IdentityStep) Run(ctx context.Context, data *Data) error {
	if data.User.Username != "" {
		// Username freezes once linked; a re-auth keeps the stored value.
		return nil
	}
	username, err := s.Resolver.Username(ctx, data.AccessToken)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	data.User.Username = username
	return nil
}

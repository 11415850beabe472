package auth

import (
	"context"
	"time"
)

// FinalizeStep always runs last: it stamps the authentication timestamp and
// burns the single-use registration code. The linked username is frozen from
// here on. Never fails.
type FinalizeStep struct {
	Now func() time.Time
}

func (s FinalizeStep) Name() string { return "finalize" }

func (s FinalizeStep) Run(ctx context.Context, data *Data) error {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	data.User.AuthenticatedAt = &now
	data.User.RegistrationCode = ""
	return nil
}

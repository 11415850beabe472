package auth

import (
	"context"
	"fmt"
	"time"
)

// DuplicateStep checks whether the linked identity already belongs to another
// record. Same platform account: the attempt becomes a merge into the prior
// record and the in-progress one is deleted. Different platform account: the
// duplicate reference is recorded and the pipeline continues, leaving policy
// to downstream consumers.
type DuplicateStep struct {
	Users UserStore
	Now   func() time.Time
}

func (s DuplicateStep) Name() string { return "duplicate" }

func (s DuplicateStep) Run(ctx context.Context, data *Data) error {
	if data.User.Username == "" {
		return nil
	}
	others, err := s.Users.FindByUsername(ctx, data.User.Username)
	if err != nil {
		return fmt.Errorf("duplicate lookup: %w", err)
	}
	// A same-member record always wins over a foreign one: the attempt is a
	// re-auth merge even when another member's record also holds the name.
	var foreign *AuthUser
	for _, other := range others {
		if other.ID == data.User.ID {
			continue
		}
		if other.MemberID == data.User.MemberID {
			return s.merge(ctx, data, other)
		}
		if foreign == nil {
			foreign = other
		}
	}
	if foreign != nil {
		id := foreign.ID
		data.User.DuplicateOfID = &id
	}
	return nil
}

// merge re-authenticates the prior record and discards the in-progress one.
func (s DuplicateStep) merge(ctx context.Context, data *Data, other *AuthUser) error {
	now := s.now()
	other.AuthenticatedAt = &now
	other.RegistrationCode = ""
	if err := s.Users.Update(ctx, other); err != nil {
		return fmt.Errorf("mark prior record authenticated: %w", err)
	}
	if data.User.ID != 0 {
		if err := s.Users.Delete(ctx, data.User.ID); err != nil {
			return fmt.Errorf("delete in-progress record: %w", err)
		}
	}
	data.User = other
	data.merged = true
	return nil
}

func (s DuplicateStep) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

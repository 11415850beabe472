package auth

import (
	"context"
	"errors"
)

// GuildMemberCondition rejects attempts for users without a membership
// snapshot: linking only makes sense for current guild members.
type GuildMemberCondition struct{}

func (GuildMemberCondition) Name() string { return "guild-member" }

func (GuildMemberCondition) Check(ctx context.Context, data *Data) error {
	if data.Member == nil {
		return errors.New("not a member of the guild")
	}
	return nil
}

// PendingRegistrationCondition requires an open registration: either a live
// single-use code, or a not-yet-authenticated record. A record that was
// already authenticated and has no code left has nothing to link.
type PendingRegistrationCondition struct{}

func (PendingRegistrationCondition) Name() string { return "pending-registration" }

func (PendingRegistrationCondition) Check(ctx context.Context, data *Data) error {
	if data.User == nil {
		return errors.New("no registration in progress")
	}
	if data.User.Authenticated() && data.User.RegistrationCode == "" {
		return errors.New("account is already linked")
	}
	return nil
}

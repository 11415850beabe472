package auth

import (
	"context"
	"fmt"
	"strings"

	"unilink.org/internal/directory"
	"unilink.org/internal/platform"
)

// RoleQueue is the durable reconciliation surface consumed by the role task.
// SaveRoles persists the intent log; EnqueueRoles hands the job to the queue.
type RoleQueue interface {
	SaveRoles(ctx context.Context, guildID, memberID string, set *DecisionSet) error
	EnqueueRoles(member *platform.Member, set *DecisionSet, done func(error))
}

// EnqueueRolesTask durably logs the attempt's role decisions and enqueues the
// reconciliation job. Logged intent survives a crash; the job applies it.
type EnqueueRolesTask struct {
	Queue RoleQueue
}

func (t EnqueueRolesTask) Name() string { return "enqueue-roles" }

func (t EnqueueRolesTask) Run(ctx context.Context, data *Data) error {
	if data.Merged() || data.Member == nil {
		return nil
	}
	if err := t.Queue.SaveRoles(ctx, data.GuildID, data.Member.UserID, data.Roles); err != nil {
		return fmt.Errorf("save role log: %w", err)
	}
	t.Queue.EnqueueRoles(data.Member, data.Roles, nil)
	return nil
}

// NicknameTask sets the member's guild nickname to their registry name.
type NicknameTask struct {
	Client   platform.Client
	Registry directory.Registry
}

func (t NicknameTask) Name() string { return "nickname" }

func (t NicknameTask) Run(ctx context.Context, data *Data) error {
	if data.Member == nil {
		return nil
	}
	person, err := data.registryPerson(ctx, t.Registry)
	if err != nil {
		return fmt.Errorf("registry person: %w", err)
	}
	if person == nil {
		return nil
	}
	nick := strings.TrimSpace(person.FirstName + " " + person.LastName)
	if nick == "" || nick == data.Member.Nickname {
		return nil
	}
	if err := t.Client.SetNickname(ctx, data.GuildID, data.Member.UserID, nick); err != nil {
		return fmt.Errorf("set nickname: %w", err)
	}
	return nil
}

// DuplicateWarningTask posts a moderator notice when the attempt resolved a
// username already linked to a different member.
type DuplicateWarningTask struct {
	Client    platform.Client
	ChannelID string
}

func (t DuplicateWarningTask) Name() string { return "duplicate-warning" }

func (t DuplicateWarningTask) Run(ctx context.Context, data *Data) error {
	if t.ChannelID == "" || data.User == nil || data.User.DuplicateOfID == nil {
		return nil
	}
	memberID := ""
	if data.Member != nil {
		memberID = data.Member.UserID
	}
	msg := fmt.Sprintf("Username %s linked by member %s duplicates existing record #%d.",
		data.User.Username, memberID, *data.User.DuplicateOfID)
	if err := t.Client.SendMessage(ctx, t.ChannelID, msg); err != nil {
		return fmt.Errorf("send duplicate warning: %w", err)
	}
	return nil
}

// UpdateInteractionTask rewrites the originating interaction message with the
// final outcome so the user sees completion without polling.
type UpdateInteractionTask struct {
	Client platform.Client
}

func (t UpdateInteractionTask) Name() string { return "update-interaction" }

func (t UpdateInteractionTask) Run(ctx context.Context, data *Data) error {
	if data.InteractionChannelID == "" || data.InteractionMessageID == "" {
		return nil
	}
	msg := "Account linked."
	if data.Merged() {
		msg = "Account already linked; records merged."
	}
	if err := t.Client.EditMessage(ctx, data.InteractionChannelID, data.InteractionMessageID, msg); err != nil {
		return fmt.Errorf("edit interaction message: %w", err)
	}
	return nil
}

package platform

import (
	"context"
	"errors"
	"slices"
)

// ErrNotFound indicates the guild, member or message does not exist on the
// platform. Callers must treat it differently from transient failures.
var ErrNotFound = errors.New("platform: not found")

// Member is a snapshot of a user's membership within one guild.
type Member struct {
	GuildID  string
	UserID   string
	Nickname string
	RoleIDs  []int64
}

// HasRole reports whether the snapshot includes the given role id.
func (m *Member) HasRole(roleID int64) bool {
	if m == nil {
		return false
	}
	return slices.Contains(m.RoleIDs, roleID)
}

// Client is the chat platform REST surface consumed by this service. It must
// tolerate concurrent use from parallel attempts and the queue worker.
type Client interface {
	Member(ctx context.Context, guildID, userID string) (*Member, error)
	AddMemberRole(ctx context.Context, guildID, userID string, roleID int64) error
	RemoveMemberRole(ctx context.Context, guildID, userID string, roleID int64) error
	SetNickname(ctx context.Context, guildID, userID, nickname string) error
	SendMessage(ctx context.Context, channelID, content string) error
	EditMessage(ctx context.Context, channelID, messageID, content string) error
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"unilink.org/internal/audit"
	"unilink.org/internal/auth"
	"unilink.org/internal/ids"
	"unilink.org/internal/obs"
	"unilink.org/internal/platform"
)

type linkRequest struct {
	MemberID    string `json:"member_id"`
	GuildID     string `json:"guild_id,omitempty"`
	AccessToken string `json:"access_token"`
	ChannelID   string `json:"channel_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

type linkResponse struct {
	Status   string   `json:"status"`
	Username string   `json:"username,omitempty"`
	Merged   bool     `json:"merged,omitempty"`
	Token    string   `json:"token,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Link runs one authentication attempt for a guild member.
func (a *API) Link(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req linkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	if req.MemberID == "" || req.AccessToken == "" {
		writeError(w, r, http.StatusBadRequest, "member_id and access_token are required")
		return
	}
	guildID := req.GuildID
	if guildID == "" {
		guildID = a.guildID
	}

	ctx := r.Context()

	member, err := a.platform.Member(ctx, guildID, req.MemberID)
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		obs.Error("platform member lookup failed", map[string]any{
			"member_id": req.MemberID,
			"error":     err.Error(),
		})
		writeError(w, r, http.StatusBadGateway, "chat platform unavailable")
		return
	}

	user, err := a.users.FindByMember(ctx, req.MemberID)
	if errors.Is(err, auth.ErrNotFound) {
		user = &auth.AuthUser{
			MemberID:         req.MemberID,
			RegistrationCode: ids.New(),
		}
	} else if err != nil {
		writeError(w, r, http.StatusInternalServerError, "storage unavailable")
		return
	}

	data := auth.NewData(req.AccessToken, guildID, member, user)
	data.InteractionChannelID = req.ChannelID
	data.InteractionMessageID = req.MessageID

	runErr := a.process.Run(ctx, data)

	switch {
	case runErr == nil:
		_ = audit.LogEvent(ctx, "link.completed", map[string]any{
			"member_id": req.MemberID,
			"guild_id":  guildID,
			"username":  data.User.Username,
			"merged":    data.Merged(),
		})
		writeJSON(w, http.StatusOK, linkResponse{
			Status:   "linked",
			Username: data.User.Username,
			Merged:   data.Merged(),
			Token:    a.sessionToken(req.MemberID, data),
		})
	case auth.IsSoft(runErr):
		var soft *auth.SoftError
		errors.As(runErr, &soft)
		warnings := make([]string, 0, len(soft.Errs))
		for _, err := range soft.Errs {
			warnings = append(warnings, err.Error())
		}
		_ = audit.LogEvent(ctx, "link.completed_with_warnings", map[string]any{
			"member_id": req.MemberID,
			"guild_id":  guildID,
			"username":  data.User.Username,
			"warnings":  len(warnings),
		})
		writeJSON(w, http.StatusOK, linkResponse{
			Status:   "linked_with_warnings",
			Username: data.User.Username,
			Merged:   data.Merged(),
			Token:    a.sessionToken(req.MemberID, data),
			Warnings: warnings,
		})
	default:
		_ = audit.LogEvent(ctx, "link.rejected", map[string]any{
			"member_id": req.MemberID,
			"guild_id":  guildID,
			"error":     runErr.Error(),
		})
		writeError(w, r, http.StatusUnprocessableEntity, runErr.Error())
	}
}

// sessionToken issues the short-lived JWT handed back after linking. Roles
// carry the names of the granted mappings. A signing failure is not worth
// failing the attempt for; the caller just gets no token.
func (a *API) sessionToken(memberID string, data *auth.Data) string {
	granted := data.Roles.ToAdd()
	roles := make([]string, 0, len(granted))
	for _, role := range granted {
		if role.Description != "" {
			roles = append(roles, role.Description)
		}
	}
	token, err := auth.GenerateToken(memberID, roles, a.sessionTTL)
	if err != nil {
		obs.Warn("session token not issued", map[string]any{
			"member_id": memberID,
			"error":     err.Error(),
		})
		return ""
	}
	return token
}

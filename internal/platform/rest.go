package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultRequestsPerSecond = 25

// RESTClient talks to the chat platform HTTP API with a shared request pacer
// so parallel attempts and the queue worker stay inside the platform's global
// rate limit.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// RESTOption configures RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) RESTOption {
	return func(c *RESTClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRequestRate overrides the outgoing request pacing.
func WithRequestRate(perSecond int) RESTOption {
	return func(c *RESTClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// NewRESTClient creates a client for the given API base URL and bot token.
func NewRESTClient(baseURL, token string, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*RESTClient)(nil)

type memberPayload struct {
	UserID   string   `json:"user_id"`
	Nickname string   `json:"nickname"`
	RoleIDs  []string `json:"roles"`
}

// Member fetches the membership snapshot for (guild, user).
func (c *RESTClient) Member(ctx context.Context, guildID, userID string) (*Member, error) {
	path := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var payload memberPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("platform: decode member: %w", err)
	}
	member := &Member{
		GuildID:  guildID,
		UserID:   userID,
		Nickname: payload.Nickname,
		RoleIDs:  make([]int64, 0, len(payload.RoleIDs)),
	}
	for _, raw := range payload.RoleIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("platform: role id %q: %w", raw, err)
		}
		member.RoleIDs = append(member.RoleIDs, id)
	}
	return member, nil
}

// AddMemberRole grants one role to a member.
func (c *RESTClient) AddMemberRole(ctx context.Context, guildID, userID string, roleID int64) error {
	path := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID) +
		"/roles/" + strconv.FormatInt(roleID, 10)
	body, err := c.do(ctx, http.MethodPut, path, nil)
	if err != nil {
		return err
	}
	return body.Close()
}

// RemoveMemberRole revokes one role from a member.
func (c *RESTClient) RemoveMemberRole(ctx context.Context, guildID, userID string, roleID int64) error {
	path := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID) +
		"/roles/" + strconv.FormatInt(roleID, 10)
	body, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	return body.Close()
}

// SetNickname updates the member's guild nickname.
func (c *RESTClient) SetNickname(ctx context.Context, guildID, userID, nickname string) error {
	path := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(userID)
	body, err := c.do(ctx, http.MethodPatch, path, map[string]any{"nick": nickname})
	if err != nil {
		return err
	}
	return body.Close()
}

// SendMessage posts a message to a channel.
func (c *RESTClient) SendMessage(ctx context.Context, channelID, content string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	body, err := c.do(ctx, http.MethodPost, path, map[string]any{"content": content})
	if err != nil {
		return err
	}
	return body.Close()
}

// EditMessage rewrites the content of a previously sent message.
func (c *RESTClient) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	body, err := c.do(ctx, http.MethodPatch, path, map[string]any{"content": content})
	if err != nil {
		return err
	}
	return body.Close()
}

func (c *RESTClient) do(ctx context.Context, method, path string, payload any) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("platform: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("platform: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("platform: %s %s: unexpected status %d: %s",
			method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	return resp.Body, nil
}

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// PeopleClient implements People over the secondary directory's REST API.
type PeopleClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewPeopleClient creates a secondary directory client.
func NewPeopleClient(baseURL, token string, opts ...Option) *PeopleClient {
	return &PeopleClient{
		baseURL: baseURL,
		token:   token,
		http:    newHTTPClient(opts),
	}
}

var _ People = (*PeopleClient)(nil)

type directoryPerson struct {
	Username  string   `json:"username"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	FullName  string   `json:"fullName"`
	Roles     []string `json:"roles"`
}

// Person returns the directory person record, or (nil, nil) when unknown.
func (c *PeopleClient) Person(ctx context.Context, username string) (*Person, error) {
	payload, err := c.fetch(ctx, username)
	if err != nil || payload == nil {
		return nil, err
	}
	return &Person{
		Username:  payload.Username,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		FullName:  payload.FullName,
	}, nil
}

// RoleTags returns the person's role-tag strings, or (nil, nil) when unknown.
func (c *PeopleClient) RoleTags(ctx context.Context, username string) ([]string, error) {
	payload, err := c.fetch(ctx, username)
	if err != nil || payload == nil {
		return nil, err
	}
	return payload.Roles, nil
}

func (c *PeopleClient) fetch(ctx context.Context, username string) (*directoryPerson, error) {
	body, err := getJSON(ctx, c.http, c.baseURL+"/people/"+url.PathEscape(username), c.token)
	if err != nil || body == nil {
		return nil, err
	}
	defer body.Close()

	var payload directoryPerson
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("directory: decode person: %w", err)
	}
	return &payload, nil
}

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RegistryClient implements Registry over the academic registry's REST API.
type RegistryClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRegistryClient creates a registry client for the given base URL and API token.
func NewRegistryClient(baseURL, token string, opts ...Option) *RegistryClient {
	c := &RegistryClient{
		baseURL: baseURL,
		token:   token,
		http:    newHTTPClient(opts),
	}
	return c
}

var _ Registry = (*RegistryClient)(nil)

type registryPerson struct {
	Username    string `json:"username"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	TitlePrefix string `json:"titlesPre"`
	TitleSuffix string `json:"titlesPost"`
	Staff       bool   `json:"staff"`
}

type registryStudent struct {
	Username       string `json:"username"`
	ProgrammeTitle string `json:"programmeTitle"`
	ProgrammeKind  string `json:"programmeType"`
	StartDate      string `json:"startDate"`
}

// Person returns the registry person record, or (nil, nil) when unknown.
func (c *RegistryClient) Person(ctx context.Context, username string) (*Person, error) {
	body, err := getJSON(ctx, c.http, c.baseURL+"/people/"+url.PathEscape(username), c.token)
	if err != nil || body == nil {
		return nil, err
	}
	defer body.Close()

	var payload registryPerson
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("directory: decode registry person: %w", err)
	}
	return &Person{
		Username:    payload.Username,
		FirstName:   payload.FirstName,
		LastName:    payload.LastName,
		TitlePrefix: payload.TitlePrefix,
		TitleSuffix: payload.TitleSuffix,
		Staff:       payload.Staff,
	}, nil
}

// Students returns all enrollment records for the person, or (nil, nil) when unknown.
func (c *RegistryClient) Students(ctx context.Context, username string) ([]Student, error) {
	body, err := getJSON(ctx, c.http, c.baseURL+"/people/"+url.PathEscape(username)+"/students", c.token)
	if err != nil || body == nil {
		return nil, err
	}
	defer body.Close()

	var payload []registryStudent
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("directory: decode registry students: %w", err)
	}
	students := make([]Student, 0, len(payload))
	for _, item := range payload {
		start, err := time.Parse("2006-01-02", item.StartDate)
		if err != nil && item.StartDate != "" {
			return nil, fmt.Errorf("directory: student start date %q: %w", item.StartDate, err)
		}
		students = append(students, Student{
			Username:       item.Username,
			ProgrammeTitle: item.ProgrammeTitle,
			ProgrammeKind:  item.ProgrammeKind,
			StartDate:      start,
		})
	}
	return students, nil
}

// getJSON performs an authenticated GET; a 404 becomes (nil, nil).
func getJSON(ctx context.Context, hc *http.Client, reqURL, token string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: GET %s: %w", reqURL, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		resp.Body.Close()
		return nil, fmt.Errorf("directory: GET %s: unexpected status %d", reqURL, resp.StatusCode)
	}
	return resp.Body, nil
}

package directory

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrTokenRejected indicates the identity provider refused the access token.
var ErrTokenRejected = errors.New("directory: access token rejected")

// Programme kinds reported by the academic registry.
const (
	ProgrammeBachelor = "bachelor"
	ProgrammeMaster   = "master"
	ProgrammeDoctoral = "doctoral"
)

// Person is an identity record from one of the university directories. The
// primary registry fills the structured title fields; the secondary directory
// is only guaranteed to provide the full name.
type Person struct {
	Username    string
	FirstName   string
	LastName    string
	FullName    string
	TitlePrefix string
	TitleSuffix string
	Staff       bool
}

// Student is one enrollment record for a person. A person holds one record
// per programme they ever enrolled in.
type Student struct {
	Username       string
	ProgrammeTitle string
	ProgrammeKind  string
	StartDate      time.Time
}

// Registry is the primary academic registry: authoritative person and
// enrollment records. Lookups return (nil, nil) when the subject is unknown.
type Registry interface {
	Person(ctx context.Context, username string) (*Person, error)
	Students(ctx context.Context, username string) ([]Student, error)
}

// People is the secondary directory: less structured person data plus the
// role-tag strings used for role mapping.
type People interface {
	Person(ctx context.Context, username string) (*Person, error)
	RoleTags(ctx context.Context, username string) ([]string, error)
}

// TokenResolver exchanges a bearer access token for the linked-account
// username, or fails with ErrTokenRejected.
type TokenResolver interface {
	Username(ctx context.Context, accessToken string) (string, error)
}

// Option configures the HTTP behavior of a directory client.
type Option func(*clientOptions)

type clientOptions struct {
	http *http.Client
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		if hc != nil {
			o.http = hc
		}
	}
}

func newHTTPClient(opts []Option) *http.Client {
	o := clientOptions{http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}
	return o.http
}

// LatestStudent returns the enrollment with the most recent start date, or
// nil when there are no records.
func LatestStudent(students []Student) *Student {
	var latest *Student
	for i := range students {
		if latest == nil || students[i].StartDate.After(latest.StartDate) {
			latest = &students[i]
		}
	}
	return latest
}

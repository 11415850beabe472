package auth

import (
	"context"

	"unilink.org/internal/directory"
	"unilink.org/internal/platform"
)

// Data is the working record of one authentication attempt. Created by the
// orchestrator, threaded through every condition, step and task, and
// discarded afterwards; it is never persisted directly.
type Data struct {
	// Immutable inputs.
	AccessToken string
	GuildID     string
	Member      *platform.Member

	// Set by the transport when the attempt was started from an interaction
	// message that should be updated once linking finishes.
	InteractionChannelID string
	InteractionMessageID string

	// Mutable outputs.
	User  *AuthUser
	Roles *DecisionSet

	// merged is set by the duplicate step when the attempt resolved to an
	// existing authenticated record; remaining steps are skipped.
	merged bool

	// Cached directory lookups, shared between steps of the same attempt.
	regPerson        *directory.Person
	regPersonLoaded  bool
	students         []directory.Student
	studentsLoaded   bool
	dirPerson        *directory.Person
	dirPersonLoaded  bool
}

// NewData builds the per-attempt record.
func NewData(accessToken, guildID string, member *platform.Member, user *AuthUser) *Data {
	return &Data{
		AccessToken: accessToken,
		GuildID:     guildID,
		Member:      member,
		User:        user,
		Roles:       NewDecisionSet(),
	}
}

// Merged reports whether the attempt short-circuited as a merge into an
// existing record.
func (d *Data) Merged() bool { return d.merged }

func (d *Data) registryPerson(ctx context.Context, reg directory.Registry) (*directory.Person, error) {
	if d.regPersonLoaded {
		return d.regPerson, nil
	}
	person, err := reg.Person(ctx, d.User.Username)
	if err != nil {
		return nil, err
	}
	d.regPerson = person
	d.regPersonLoaded = true
	return person, nil
}

func (d *Data) registryStudents(ctx context.Context, reg directory.Registry) ([]directory.Student, error) {
	if d.studentsLoaded {
		return d.students, nil
	}
	students, err := reg.Students(ctx, d.User.Username)
	if err != nil {
		return nil, err
	}
	d.students = students
	d.studentsLoaded = true
	return students, nil
}

func (d *Data) directoryPerson(ctx context.Context, people directory.People) (*directory.Person, error) {
	if d.dirPersonLoaded {
		return d.dirPerson, nil
	}
	person, err := people.Person(ctx, d.User.Username)
	if err != nil {
		return nil, err
	}
	d.dirPerson = person
	d.dirPersonLoaded = true
	return person, nil
}

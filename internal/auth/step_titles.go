package auth

import (
	"context"
	"fmt"
	"strings"

	"unilink.org/internal/directory"
	"unilink.org/internal/obs"
)

// TitleRolesStep maps academic titles to configured roles. The registry's
// structured pre-/post-nominal fields are authoritative; when the registry
// has no record at all, the titles are scraped out of the secondary
// directory's full-name string, which is best-effort only.
type TitleRolesStep struct {
	Mappings MappingStore
	Registry directory.Registry
	People   directory.People
}

func (s TitleRolesStep) Name() string { return "title-roles" }

func (s TitleRolesStep) Run(ctx context.Context, data *Data) error {
	prefix, suffix, err := s.resolveTitles(ctx, data)
	if err != nil {
		return err
	}
	tokens := append(splitTitles(prefix), splitTitles(suffix)...)
	for _, token := range tokens {
		mappings, err := s.Mappings.RolesByTitle(ctx, token)
		if err != nil {
			return fmt.Errorf("title mapping lookup: %w", err)
		}
		if len(mappings) == 0 {
			obs.Warn("no role mapping for title", map[string]any{
				"title": token, "member": data.User.MemberID,
			})
			continue
		}
		for _, m := range mappings {
			data.Roles.AddRole(m.Assignment())
		}
	}
	return nil
}

func (s TitleRolesStep) resolveTitles(ctx context.Context, data *Data) (prefix, suffix string, err error) {
	person, err := data.registryPerson(ctx, s.Registry)
	if err != nil {
		return "", "", fmt.Errorf("registry person lookup: %w", err)
	}
	if person != nil {
		return person.TitlePrefix, person.TitleSuffix, nil
	}
	dirPerson, err := data.directoryPerson(ctx, s.People)
	if err != nil {
		return "", "", fmt.Errorf("directory person lookup: %w", err)
	}
	if dirPerson == nil {
		return "", "", nil
	}
	prefix, suffix = parseTitlesFromName(dirPerson.FullName, dirPerson.FirstName, dirPerson.LastName)
	return prefix, suffix, nil
}

// parseTitlesFromName extracts pre- and post-nominal titles out of a full
// name: everything before the first occurrence of the given name and after
// the last occurrence of the family name. Inherently less reliable than the
// registry's structured fields.
func parseTitlesFromName(fullName, firstName, lastName string) (prefix, suffix string) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" || firstName == "" || lastName == "" {
		return "", ""
	}
	if i := strings.Index(fullName, firstName); i > 0 {
		prefix = strings.TrimSpace(strings.Trim(fullName[:i], " ,"))
	}
	if i := strings.LastIndex(fullName, lastName); i >= 0 {
		suffix = strings.TrimSpace(strings.Trim(fullName[i+len(lastName):], " ,"))
	}
	return prefix, suffix
}

func splitTitles(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

package auth

import (
	"context"
	"fmt"

	"unilink.org/internal/directory"
)

// DirectoryTagRolesStep requests the union of roles mapped from the person's
// directory role-tag strings. The mapping store matches both exact strings
// and configured regular expressions.
type DirectoryTagRolesStep struct {
	Mappings MappingStore
	People   directory.People
}

func (s DirectoryTagRolesStep) Name() string { return "directory-tag-roles" }

func (s DirectoryTagRolesStep) Run(ctx context.Context, data *Data) error {
	tags, err := s.People.RoleTags(ctx, data.User.Username)
	if err != nil {
		return fmt.Errorf("directory role tags lookup: %w", err)
	}
	for _, tag := range tags {
		mappings, err := s.Mappings.RolesByTag(ctx, tag)
		if err != nil {
			return fmt.Errorf("tag mapping lookup: %w", err)
		}
		for _, m := range mappings {
			data.Roles.AddRole(m.Assignment())
		}
	}
	return nil
}

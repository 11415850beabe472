package auth

import (
	"context"
	"fmt"

	"unilink.org/internal/directory"
	"unilink.org/internal/obs"
)

// ProgrammeRolesStep maps the title of the person's most recent programme to
// configured roles. An unmapped programme is a warning, not a failure.
type ProgrammeRolesStep struct {
	Mappings MappingStore
	Registry directory.Registry
}

func (s ProgrammeRolesStep) Name() string { return "programme-roles" }

func (s ProgrammeRolesStep) Run(ctx context.Context, data *Data) error {
	students, err := data.registryStudents(ctx, s.Registry)
	if err != nil {
		return fmt.Errorf("registry students lookup: %w", err)
	}
	current := directory.LatestStudent(students)
	if current == nil || current.ProgrammeTitle == "" {
		return nil
	}
	mappings, err := s.Mappings.RolesByProgramme(ctx, current.ProgrammeTitle)
	if err != nil {
		return fmt.Errorf("programme mapping lookup: %w", err)
	}
	if len(mappings) == 0 {
		obs.Warn("no role mapping for programme", map[string]any{
			"programme": current.ProgrammeTitle, "member": data.User.MemberID,
		})
		return nil
	}
	for _, m := range mappings {
		data.Roles.AddRole(m.Assignment())
	}
	return nil
}

package auth

import (
	"context"
	"fmt"

	"unilink.org/internal/directory"
	"unilink.org/internal/obs"
)

// YearRolesStep maps the start year of the person's primary enrollment record
// to configured roles. An unmapped year is a warning, not a failure.
type YearRolesStep struct {
	Mappings MappingStore
	Registry directory.Registry
}

func (s YearRolesStep) Name() string { return "year-roles" }

func (s YearRolesStep) Run(ctx context.Context, data *Data) error {
	students, err := data.registryStudents(ctx, s.Registry)
	if err != nil {
		return fmt.Errorf("registry students lookup: %w", err)
	}
	if len(students) == 0 {
		return nil
	}
	year := students[0].StartDate.Year()
	if year == 1 {
		return nil
	}
	mappings, err := s.Mappings.RolesByYear(ctx, year)
	if err != nil {
		return fmt.Errorf("year mapping lookup: %w", err)
	}
	if len(mappings) == 0 {
		obs.Warn("no role mapping for start year", map[string]any{
			"year": year, "member": data.User.MemberID,
		})
		return nil
	}
	for _, m := range mappings {
		data.Roles.AddRole(m.Assignment())
	}
	return nil
}

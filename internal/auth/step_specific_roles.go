package auth

import (
	"context"
	"errors"
	"fmt"

	"unilink.org/internal/directory"
	"unilink.org/internal/obs"
)

// SpecificRolesStep requests the fixed, identity-derived roles: the baseline
// authenticated role for everyone, the teacher role for staff, and one of the
// programme-level roles. A missing baseline mapping is a deployment error and
// aborts the attempt; every other unresolved name is logged and skipped.
type SpecificRolesStep struct {
	Mappings MappingStore
	Registry directory.Registry
}

func (s SpecificRolesStep) Name() string { return "specific-roles" }

func (s SpecificRolesStep) Run(ctx context.Context, data *Data) error {
	base, err := s.Mappings.RoleByName(ctx, RoleAuthenticated)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf(`missing %q role mapping in configuration`, RoleAuthenticated)
	}
	if err != nil {
		return fmt.Errorf("resolve %q role mapping: %w", RoleAuthenticated, err)
	}
	data.Roles.AddRole(base.Assignment())

	person, err := data.registryPerson(ctx, s.Registry)
	if err != nil {
		return fmt.Errorf("registry person lookup: %w", err)
	}
	if person != nil && person.Staff {
		s.requestByName(ctx, data, RoleTeacher)
	}

	students, err := data.registryStudents(ctx, s.Registry)
	if err != nil {
		return fmt.Errorf("registry students lookup: %w", err)
	}
	if current := directory.LatestStudent(students); current != nil {
		if name := levelRoleName(current.ProgrammeKind); name != "" {
			s.requestByName(ctx, data, name)
		}
	}
	return nil
}

func (s SpecificRolesStep) requestByName(ctx context.Context, data *Data, name string) {
	m, err := s.Mappings.RoleByName(ctx, name)
	if err != nil {
		obs.Warn("role mapping unresolved, skipping", map[string]any{
			"role": name, "member": data.User.MemberID,
		})
		return
	}
	data.Roles.AddRole(m.Assignment())
}

func levelRoleName(programmeKind string) string {
	switch programmeKind {
	case directory.ProgrammeBachelor:
		return RoleBachelor
	case directory.ProgrammeMaster:
		return RoleMaster
	case directory.ProgrammeDoctoral:
		return RoleDoctoral
	default:
		return ""
	}
}

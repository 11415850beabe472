package auth

import (
	"context"
	"fmt"
)

// RemoveStaleRolesStep marks every service-managed role the member currently
// holds for soft removal. Must run after all granting steps: the decision
// set's add-wins rule then withdraws the removal of anything re-granted this
// attempt, leaving only genuinely stale roles.
type RemoveStaleRolesStep struct {
	Mappings MappingStore
}

func (s RemoveStaleRolesStep) Name() string { return "remove-stale-roles" }

func (s RemoveStaleRolesStep) Run(ctx context.Context, data *Data) error {
	if data.Member == nil {
		return nil
	}
	grantable, err := s.Mappings.GrantableRoleIDs(ctx)
	if err != nil {
		return fmt.Errorf("grantable roles lookup: %w", err)
	}
	managed := make(map[int64]struct{}, len(grantable))
	for _, id := range grantable {
		managed[id] = struct{}{}
	}
	for _, roleID := range data.Member.RoleIDs {
		if _, ok := managed[roleID]; !ok {
			continue
		}
		data.Roles.SoftRemoveRole(RoleAssignment{
			RoleID:      roleID,
			Kind:        KindRole,
			Description: "stale managed role",
		})
	}
	return nil
}

package auth

import "testing"

func containsRole(roles []RoleAssignment, id int64) bool {
	for _, r := range roles {
		if r.RoleID == id {
			return true
		}
	}
	return false
}

func TestDecisionSetAddWinsOverPriorSoftRemove(t *testing.T) {
	set := NewDecisionSet()
	set.SoftRemoveRole(RoleAssignment{RoleID: 1})
	set.AddRole(RoleAssignment{RoleID: 1})

	if !containsRole(set.ToAdd(), 1) {
		t.Fatal("role missing from add set")
	}
	if containsRole(set.ToSoftRemove(), 1) {
		t.Fatal("role still marked for removal after add")
	}
}

func TestDecisionSetAddWinsOverLaterSoftRemove(t *testing.T) {
	set := NewDecisionSet()
	set.AddRole(RoleAssignment{RoleID: 1})
	set.SoftRemoveRole(RoleAssignment{RoleID: 1})

	if !containsRole(set.ToAdd(), 1) {
		t.Fatal("role missing from add set")
	}
	if containsRole(set.ToSoftRemove(), 1) {
		t.Fatal("soft removal of an added role must be a no-op")
	}
}

func TestDecisionSetNeverHoldsRoleInBothSets(t *testing.T) {
	set := NewDecisionSet()
	set.AddRange([]RoleAssignment{{RoleID: 1}, {RoleID: 2}})
	set.SoftRemoveRange([]RoleAssignment{{RoleID: 2}, {RoleID: 3}})
	set.AddRole(RoleAssignment{RoleID: 3})
	set.SoftRemoveRole(RoleAssignment{RoleID: 4})

	adds := set.ToAdd()
	removes := set.ToSoftRemove()
	for _, r := range adds {
		if containsRole(removes, r.RoleID) {
			t.Fatalf("role %d present in both sets", r.RoleID)
		}
	}
	if len(adds) != 3 {
		t.Fatalf("add set size = %d, want 3", len(adds))
	}
	if len(removes) != 1 || removes[0].RoleID != 4 {
		t.Fatalf("remove set = %v, want only role 4", removes)
	}
}

func TestDecisionSetSnapshotsAreCopies(t *testing.T) {
	set := NewDecisionSet()
	set.AddRole(RoleAssignment{RoleID: 1})

	snap := set.ToAdd()
	snap[0].RoleID = 99

	if !containsRole(set.ToAdd(), 1) {
		t.Fatal("mutating a snapshot changed the set")
	}
}

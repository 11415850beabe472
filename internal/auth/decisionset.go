package auth

import "sync"

// RoleAssignment is one role decision. Equality is by RoleID only; Kind and
// Description travel along for diagnostics.
type RoleAssignment struct {
	RoleID      int64
	Kind        string
	Description string
}

// DecisionSet accumulates role add/soft-remove intents across pipeline steps.
// Add takes precedence over soft-removal: the invariant that a role id never
// appears in both sets is enforced at every mutation, because the queue
// downstream does not re-check for contradictions.
type DecisionSet struct {
	mu         sync.Mutex
	toAdd      map[int64]RoleAssignment
	softRemove map[int64]RoleAssignment
}

// NewDecisionSet returns an empty set.
func NewDecisionSet() *DecisionSet {
	return &DecisionSet{
		toAdd:      make(map[int64]RoleAssignment),
		softRemove: make(map[int64]RoleAssignment),
	}
}

// AddRole requests the role. A pending soft-removal of the same id is
// withdrawn. Duplicate adds are idempotent.
func (s *DecisionSet) AddRole(r RoleAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.softRemove, r.RoleID)
	s.toAdd[r.RoleID] = r
}

// SoftRemoveRole marks the role for removal unless it is already requested
// for adding; in that case the add wins and the call is a no-op.
func (s *DecisionSet) SoftRemoveRole(r RoleAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, added := s.toAdd[r.RoleID]; added {
		return
	}
	s.softRemove[r.RoleID] = r
}

// AddRange requests every role in the slice.
func (s *DecisionSet) AddRange(roles []RoleAssignment) {
	for _, r := range roles {
		s.AddRole(r)
	}
}

// SoftRemoveRange marks every role in the slice for soft removal.
func (s *DecisionSet) SoftRemoveRange(roles []RoleAssignment) {
	for _, r := range roles {
		s.SoftRemoveRole(r)
	}
}

// ToAdd returns a snapshot of the roles requested for adding.
func (s *DecisionSet) ToAdd() []RoleAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.toAdd)
}

// ToSoftRemove returns a snapshot of the roles still marked for removal.
func (s *DecisionSet) ToSoftRemove() []RoleAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.softRemove)
}

func snapshot(m map[int64]RoleAssignment) []RoleAssignment {
	out := make([]RoleAssignment, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	return out
}

// RoleIDs extracts the role ids of a snapshot.
func RoleIDs(roles []RoleAssignment) []int64 {
	out := make([]int64, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.RoleID)
	}
	return out
}

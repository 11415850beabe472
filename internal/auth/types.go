package auth

import "time"

// AuthUser links a chat platform account to a university identity. Created on
// first contact, mutated by the pipeline, never deleted automatically (the
// only deletion is the duplicate-of-self merge).
type AuthUser struct {
	ID               int64
	MemberID         string // platform user id, immutable once set
	Username         string // linked-account username, empty until the identity step succeeds
	RegistrationCode string // single-use, cleared on success
	AuthenticatedAt  *time.Time
	DuplicateOfID    *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Authenticated reports whether the linking pipeline ever completed for this user.
func (u *AuthUser) Authenticated() bool {
	return u != nil && u.AuthenticatedAt != nil
}

// Mapping kinds: a plain platform role or a soft role category.
const (
	KindRole     = "role"
	KindCategory = "category"
)

// Well-known role mapping names resolved by the specific-role step.
const (
	RoleAuthenticated = "Authentication"
	RoleTeacher       = "Teacher"
	RoleBachelor      = "Bachelor"
	RoleMaster        = "Master"
	RoleDoctoral      = "Doctoral"
)

// RoleMapping resolves a configured name, programme, year, title or tag to a
// platform role id.
type RoleMapping struct {
	ID     string
	Name   string
	Kind   string
	RoleID int64
}

// Assignment converts the mapping into a pipeline role decision.
func (m RoleMapping) Assignment() RoleAssignment {
	return RoleAssignment{RoleID: m.RoleID, Kind: m.Kind, Description: m.Name}
}

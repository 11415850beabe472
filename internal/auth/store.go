package auth

import "context"

// UserStore persists AuthUser records.
type UserStore interface {
	Create(ctx context.Context, u *AuthUser) error
	FindByMember(ctx context.Context, memberID string) (*AuthUser, error)
	FindByUsername(ctx context.Context, username string) ([]*AuthUser, error)
	Update(ctx context.Context, u *AuthUser) error
	Delete(ctx context.Context, id int64) error
}

// MappingStore resolves configured role mappings. Lookups that find nothing
// return an empty slice, except RoleByName which returns ErrNotFound.
type MappingStore interface {
	RoleByName(ctx context.Context, name string) (RoleMapping, error)
	RolesByProgramme(ctx context.Context, programmeTitle string) ([]RoleMapping, error)
	RolesByYear(ctx context.Context, year int) ([]RoleMapping, error)
	RolesByTitle(ctx context.Context, title string) ([]RoleMapping, error)
	RolesByTag(ctx context.Context, tag string) ([]RoleMapping, error)

	// GrantableRoleIDs returns every role id the service is capable of ever
	// granting, across all mapping tables.
	GrantableRoleIDs(ctx context.Context) ([]int64, error)
}

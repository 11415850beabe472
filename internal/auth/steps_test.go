package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"unilink.org/internal/directory"
	"unilink.org/internal/platform"
)

type fakeRegistry struct {
	person   *directory.Person
	students []directory.Student
}

func (f fakeRegistry) Person(context.Context, string) (*directory.Person, error) {
	return f.person, nil
}

func (f fakeRegistry) Students(context.Context, string) ([]directory.Student, error) {
	return f.students, nil
}

type fakePeople struct {
	person *directory.Person
	tags   []string
}

func (f fakePeople) Person(context.Context, string) (*directory.Person, error) {
	return f.person, nil
}

func (f fakePeople) RoleTags(context.Context, string) ([]string, error) {
	return f.tags, nil
}

type fakeResolver struct {
	username string
	err      error
}

func (f fakeResolver) Username(context.Context, string) (string, error) {
	return f.username, f.err
}

func attemptData(user *AuthUser, member *platform.Member) *Data {
	return NewData("tok", "g1", member, user)
}

func TestIdentityStepResolvesUsername(t *testing.T) {
	step := IdentityStep{Resolver: fakeResolver{username: "jdoe"}}
	data := attemptData(&AuthUser{MemberID: "m1"}, nil)

	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if data.User.Username != "jdoe" {
		t.Fatalf("username = %q, want jdoe", data.User.Username)
	}
}

func TestIdentityStepKeepsFrozenUsername(t *testing.T) {
	step := IdentityStep{Resolver: fakeResolver{err: directory.ErrTokenRejected}}
	data := attemptData(&AuthUser{MemberID: "m1", Username: "existing"}, nil)

	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if data.User.Username != "existing" {
		t.Fatalf("username = %q, want existing", data.User.Username)
	}
}

func TestIdentityStepRejectedToken(t *testing.T) {
	step := IdentityStep{Resolver: fakeResolver{err: directory.ErrTokenRejected}}
	data := attemptData(&AuthUser{MemberID: "m1"}, nil)

	err := step.Run(context.Background(), data)
	if !errors.Is(err, directory.ErrTokenRejected) {
		t.Fatalf("Run error = %v, want ErrTokenRejected", err)
	}
}

func TestSpecificRolesMissingBaselineMappingIsHardFailure(t *testing.T) {
	store := NewInMemory()
	step := SpecificRolesStep{Mappings: store, Registry: fakeRegistry{}}
	data := attemptData(&AuthUser{MemberID: "m1", Username: "jdoe"}, nil)

	err := step.Run(context.Background(), data)
	if err == nil {
		t.Fatal("expected hard failure for missing baseline mapping")
	}
	if !strings.Contains(err.Error(), `"Authentication" role mapping`) {
		t.Fatalf("error %q does not name the missing mapping", err)
	}
}

func TestSpecificRolesGrantsBaselineTeacherAndLevel(t *testing.T) {
	store := NewInMemory()
	store.AddNameMapping(RoleMapping{Name: RoleAuthenticated, Kind: KindRole, RoleID: 1})
	store.AddNameMapping(RoleMapping{Name: RoleTeacher, Kind: KindRole, RoleID: 2})
	store.AddNameMapping(RoleMapping{Name: RoleMaster, Kind: KindRole, RoleID: 3})

	reg := fakeRegistry{
		person: &directory.Person{Username: "jdoe", Staff: true},
		students: []directory.Student{
			{ProgrammeKind: directory.ProgrammeBachelor, StartDate: time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC)},
			{ProgrammeKind: directory.ProgrammeMaster, StartDate: time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
	step := SpecificRolesStep{Mappings: store, Registry: reg}
	data := attemptData(&AuthUser{MemberID: "m1", Username: "jdoe"}, nil)

	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	adds := data.Roles.ToAdd()
	for _, want := range []int64{1, 2, 3} {
		if !containsRole(adds, want) {
			t.Fatalf("role %d not requested, got %v", want, adds)
		}
	}
}

func TestSpecificRolesSkipsUnresolvedOptionalNames(t *testing.T) {
	store := NewInMemory()
	store.AddNameMapping(RoleMapping{Name: RoleAuthenticated, Kind: KindRole, RoleID: 1})
	// No Teacher mapping configured.
	reg := fakeRegistry{person: &directory.Person{Username: "jdoe", Staff: true}}

	step := SpecificRolesStep{Mappings: store, Registry: reg}
	data := attemptData(&AuthUser{MemberID: "m1", Username: "jdoe"}, nil)

	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	adds := data.Roles.ToAdd()
	if len(adds) != 1 || adds[0].RoleID != 1 {
		t.Fatalf("adds = %v, want only baseline", adds)
	}
}

func TestParseTitlesFromName(t *testing.T) {
	cases := []struct {
		full, first, last string
		wantPre, wantSuf  string
	}{
		{"doc. Ing. Jan Novak, Ph.D.", "Jan", "Novak", "doc. Ing.", "Ph.D."},
		{"Jan Novak", "Jan", "Novak", "", ""},
		{"prof. Jana Svobodova", "Jana", "Svobodova", "prof.", ""},
		{"Jan Novak, CSc.", "Jan", "Novak", "", "CSc."},
		{"", "Jan", "Novak", "", ""},
	}
	for _, tc := range cases {
		pre, suf := parseTitlesFromName(tc.full, tc.first, tc.last)
		if pre != tc.wantPre || suf != tc.wantSuf {
			t.Fatalf("parseTitlesFromName(%q) = %q, %q; want %q, %q",
				tc.full, pre, suf, tc.wantPre, tc.wantSuf)
		}
	}
}

func TestTitleRolesFallsBackToDirectoryName(t *testing.T) {
	store := NewInMemory()
	store.AddTitleMapping("Ph.D.", RoleMapping{Name: "Doctor", Kind: KindCategory, RoleID: 30})

	people := fakePeople{person: &directory.Person{
		FirstName: "Jan",
		LastName:  "Novak",
		FullName:  "Jan Novak, Ph.D.",
	}}
	step := TitleRolesStep{Mappings: store, Registry: fakeRegistry{}, People: people}
	data := attemptData(&AuthUser{MemberID: "m1", Username: "jdoe"}, nil)

	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !containsRole(data.Roles.ToAdd(), 30) {
		t.Fatalf("title role not requested: %v", data.Roles.ToAdd())
	}
}

func TestTitleRolesPrefersRegistryFields(t *testing.T) {
	store := NewInMemory()
	store.AddTitleMapping("prof.", RoleMapping{Name: "Professor", Kind: KindCategory, RoleID: 31})

	reg := fakeRegistry{person: &directory.Person{TitlePrefix: "prof.", Username: "jdoe"}}
	people := fakePeople{person: &directory.Person{FullName: "doc. Jan Novak", FirstName: "Jan", LastName: "Novak"}}
	step := TitleRolesStep{Mappings: store, Registry: reg, People: people}
	data := attemptData(&AuthUser{MemberID: "m1", Username: "jdoe"}, nil)

	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	adds := data.Roles.ToAdd()
	if len(adds) != 1 || adds[0].RoleID != 31 {
		t.Fatalf("adds = %v, want only registry-derived title role", adds)
	}
}

func TestDirectoryTagRolesUnion(t *testing.T) {
	store := NewInMemory()
	store.AddTagMapping("staff", RoleMapping{Name: "Staff", Kind: KindCategory, RoleID: 40})
	if err := store.AddTagPattern(`^alumni-[0-9]{4}$`, RoleMapping{Name: "Alumni", Kind: KindCategory, RoleID: 41}); err != nil {
		t.Fatalf("AddTagPattern: %v", err)
	}

	step := DirectoryTagRolesStep{Mappings: store, People: fakePeople{tags: []string{"staff", "alumni-2019", "unmapped"}}}
	data := attemptData(&AuthUser{MemberID: "m1", Username: "jdoe"}, nil)

	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}
	adds := data.Roles.ToAdd()
	if !containsRole(adds, 40) || !containsRole(adds, 41) {
		t.Fatalf("adds = %v, want roles 40 and 41", adds)
	}
	if len(adds) != 2 {
		t.Fatalf("adds = %v, want exactly 2 roles", adds)
	}
}

func TestRemoveStaleSparesRegrantedRoles(t *testing.T) {
	store := NewInMemory()
	store.AddNameMapping(RoleMapping{Name: RoleAuthenticated, Kind: KindRole, RoleID: 10})
	store.AddNameMapping(RoleMapping{Name: RoleTeacher, Kind: KindRole, RoleID: 20})

	member := &platform.Member{GuildID: "g1", UserID: "m1", RoleIDs: []int64{10, 20, 999}}
	data := attemptData(&AuthUser{MemberID: "m1", Username: "jdoe"}, member)
	data.Roles.AddRole(RoleAssignment{RoleID: 10})

	step := RemoveStaleRolesStep{Mappings: store}
	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}

	removes := data.Roles.ToSoftRemove()
	if len(removes) != 1 || removes[0].RoleID != 20 {
		t.Fatalf("soft removes = %v, want only role 20", removes)
	}
	if containsRole(removes, 999) {
		t.Fatal("unmanaged role must never be touched")
	}
}

func TestDuplicateStepMergesSamePlatformAccount(t *testing.T) {
	store := NewInMemory()
	prior := &AuthUser{MemberID: "m1", Username: "jdoe"}
	if err := store.Create(context.Background(), prior); err != nil {
		t.Fatalf("seed prior: %v", err)
	}

	current := &AuthUser{MemberID: "m1", Username: "jdoe", RegistrationCode: "code"}
	if err := store.Create(context.Background(), &AuthUser{MemberID: "other"}); err != nil {
		t.Fatalf("seed filler: %v", err)
	}
	data := attemptData(current, nil)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := DuplicateStep{Users: store, Now: func() time.Time { return fixed }}
	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !data.Merged() {
		t.Fatal("attempt not marked merged")
	}
	if data.User.ID != prior.ID {
		t.Fatalf("data.User.ID = %d, want prior %d", data.User.ID, prior.ID)
	}
	saved, err := store.FindByMember(context.Background(), "m1")
	if err != nil {
		t.Fatalf("FindByMember: %v", err)
	}
	if saved.AuthenticatedAt == nil || !saved.AuthenticatedAt.Equal(fixed) {
		t.Fatalf("AuthenticatedAt = %v, want %v", saved.AuthenticatedAt, fixed)
	}
}

func TestDuplicateStepFlagsOtherPlatformAccount(t *testing.T) {
	store := NewInMemory()
	other := &AuthUser{MemberID: "m2", Username: "jdoe"}
	if err := store.Create(context.Background(), other); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	current := &AuthUser{MemberID: "m1", Username: "jdoe"}
	if err := store.Create(context.Background(), current); err != nil {
		t.Fatalf("create current: %v", err)
	}
	data := attemptData(current, nil)

	step := DuplicateStep{Users: store}
	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if data.Merged() {
		t.Fatal("different platform account must not merge")
	}
	if data.User.DuplicateOfID == nil || *data.User.DuplicateOfID != other.ID {
		t.Fatalf("DuplicateOfID = %v, want %d", data.User.DuplicateOfID, other.ID)
	}
}

func TestConditions(t *testing.T) {
	member := &platform.Member{GuildID: "g1", UserID: "m1"}

	if err := (GuildMemberCondition{}).Check(context.Background(), attemptData(&AuthUser{}, nil)); err == nil {
		t.Fatal("nil member must be rejected")
	}
	if err := (GuildMemberCondition{}).Check(context.Background(), attemptData(&AuthUser{}, member)); err != nil {
		t.Fatalf("member rejected: %v", err)
	}

	authAt := time.Now().UTC()
	done := &AuthUser{MemberID: "m1", AuthenticatedAt: &authAt}
	if err := (PendingRegistrationCondition{}).Check(context.Background(), attemptData(done, member)); err == nil {
		t.Fatal("already-linked account without a code must be rejected")
	}
	pending := &AuthUser{MemberID: "m1", RegistrationCode: "code"}
	if err := (PendingRegistrationCondition{}).Check(context.Background(), attemptData(pending, member)); err != nil {
		t.Fatalf("pending registration rejected: %v", err)
	}
}

func TestDuplicateStepPrefersSameMemberOverForeign(t *testing.T) {
	store := NewInMemory()
	foreign := &AuthUser{MemberID: "m2", Username: "jdoe"}
	if err := store.Create(context.Background(), foreign); err != nil {
		t.Fatalf("seed foreign: %v", err)
	}
	prior := &AuthUser{MemberID: "m1", Username: "jdoe"}
	if err := store.Create(context.Background(), prior); err != nil {
		t.Fatalf("seed prior: %v", err)
	}

	// The foreign record has the lower id and is returned first; the
	// same-member match must still win.
	current := &AuthUser{MemberID: "m1", Username: "jdoe", RegistrationCode: "code"}
	data := attemptData(current, nil)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := DuplicateStep{Users: store, Now: func() time.Time { return fixed }}
	if err := step.Run(context.Background(), data); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !data.Merged() {
		t.Fatal("attempt not marked merged")
	}
	if data.User.ID != prior.ID {
		t.Fatalf("data.User.ID = %d, want prior %d", data.User.ID, prior.ID)
	}
	if data.User.DuplicateOfID != nil {
		t.Fatalf("DuplicateOfID = %v, want nil on a merge", *data.User.DuplicateOfID)
	}
}

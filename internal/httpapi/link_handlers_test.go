package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"unilink.org/internal/auth"
	"unilink.org/internal/directory"
	"unilink.org/internal/platform"
)

type stubPlatform struct {
	platform.Client
	member *platform.Member
}

func (p *stubPlatform) Member(_ context.Context, _, _ string) (*platform.Member, error) {
	if p.member == nil {
		return nil, platform.ErrNotFound
	}
	cp := *p.member
	return &cp, nil
}

type stubResolver struct {
	username string
	err      error
}

func (r stubResolver) Username(_ context.Context, _ string) (string, error) {
	return r.username, r.err
}

type stubRegistry struct{}

func (stubRegistry) Person(_ context.Context, _ string) (*directory.Person, error) { return nil, nil }
func (stubRegistry) Students(_ context.Context, _ string) ([]directory.Student, error) {
	return nil, nil
}

func newTestAPI(t *testing.T, member *platform.Member) (*API, *auth.InMemory) {
	t.Helper()
	store := auth.NewInMemory()
	store.AddNameMapping(auth.RoleMapping{ID: "01", Name: auth.RoleAuthenticated, Kind: auth.KindRole, RoleID: 100})

	process := auth.NewProcess(store,
		[]auth.Condition{auth.GuildMemberCondition{}},
		[]auth.Step{
			auth.IdentityStep{Resolver: stubResolver{username: "jdoe"}},
			auth.SpecificRolesStep{Mappings: store, Registry: stubRegistry{}},
			auth.DuplicateStep{Users: store},
			auth.FinalizeStep{},
		},
		nil,
	)

	api := New(Deps{
		Version:  "test",
		Users:    store,
		Platform: &stubPlatform{member: member},
		Process:  process,
		GuildID:  "g1",
	})
	return api, store
}

func postLink(t *testing.T, api *API, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/link", strings.NewReader(body))
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)
	return rr
}

func TestLinkSuccess(t *testing.T) {
	member := &platform.Member{GuildID: "g1", UserID: "m1"}
	api, store := newTestAPI(t, member)

	rr := postLink(t, api, `{"member_id":"m1","access_token":"tok"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rr.Code, rr.Body.String())
	}

	var resp linkResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "linked" {
		t.Fatalf("status = %q, want linked", resp.Status)
	}
	if resp.Username != "jdoe" {
		t.Fatalf("username = %q, want jdoe", resp.Username)
	}

	user, err := store.FindByMember(context.Background(), "m1")
	if err != nil {
		t.Fatalf("FindByMember: %v", err)
	}
	if !user.Authenticated() {
		t.Fatal("user not marked authenticated")
	}
	if user.RegistrationCode != "" {
		t.Fatalf("registration code not cleared: %q", user.RegistrationCode)
	}
}

func TestLinkRejectsNonMember(t *testing.T) {
	api, store := newTestAPI(t, nil)

	rr := postLink(t, api, `{"member_id":"m1","access_token":"tok"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rr.Code, rr.Body.String())
	}

	// The record is still persisted so a later retry can resume.
	user, err := store.FindByMember(context.Background(), "m1")
	if err != nil {
		t.Fatalf("FindByMember: %v", err)
	}
	if user.Authenticated() {
		t.Fatal("rejected attempt must not authenticate")
	}
}

func TestLinkValidatesInput(t *testing.T) {
	api, _ := newTestAPI(t, nil)

	rr := postLink(t, api, `{"member_id":"m1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	rr = postLink(t, api, `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/link", nil)
	rr2 := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr2, req)
	if rr2.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr2.Code)
	}
}

func TestLinkIssuesSessionToken(t *testing.T) {
	t.Setenv("UNILINK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	member := &platform.Member{GuildID: "g1", UserID: "m1"}
	api, _ := newTestAPI(t, member)

	rr := postLink(t, api, `{"member_id":"m1","access_token":"tok"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rr.Code, rr.Body.String())
	}
	var resp linkResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected session token")
	}
	claims, err := auth.ParseAndValidate(resp.Token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "m1" {
		t.Fatalf("subject = %q, want m1", claims.Subject)
	}
}

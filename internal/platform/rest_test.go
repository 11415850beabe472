package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMemberParsesRoles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/guilds/g1/members/u1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bot bot-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id":"u1","nickname":"jdoe","roles":["100","200"]}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "bot-token")
	member, err := c.Member(context.Background(), "g1", "u1")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	if member.Nickname != "jdoe" {
		t.Fatalf("unexpected nickname %q", member.Nickname)
	}
	if len(member.RoleIDs) != 2 || member.RoleIDs[0] != 100 || member.RoleIDs[1] != 200 {
		t.Fatalf("unexpected roles %v", member.RoleIDs)
	}
	if !member.HasRole(200) || member.HasRole(300) {
		t.Fatal("HasRole mismatch")
	}
}

func TestMemberNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "bot-token")
	if _, err := c.Member(context.Background(), "g1", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemberRejectsMalformedRoleID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_id":"u1","roles":["abc"]}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "bot-token")
	if _, err := c.Member(context.Background(), "g1", "u1"); err == nil {
		t.Fatal("expected an error for a non-numeric role id")
	}
}

func TestRoleMutations(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "bot-token")
	if err := c.AddMemberRole(context.Background(), "g1", "u1", 42); err != nil {
		t.Fatalf("AddMemberRole: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/guilds/g1/members/u1/roles/42" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if err := c.RemoveMemberRole(context.Background(), "g1", "u1", 42); err != nil {
		t.Fatalf("RemoveMemberRole: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/guilds/g1/members/u1/roles/42" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestSetNicknameBody(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "bot-token")
	if err := c.SetNickname(context.Background(), "g1", "u1", "Jan Novak"); err != nil {
		t.Fatalf("SetNickname: %v", err)
	}
	if gotBody["nick"] != "Jan Novak" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestMessageEndpoints(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "bot-token")
	if err := c.SendMessage(context.Background(), "ch1", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/channels/ch1/messages" || gotBody["content"] != "hello" {
		t.Fatalf("unexpected request %s %v", gotPath, gotBody)
	}
	if err := c.EditMessage(context.Background(), "ch1", "msg1", "updated"); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if gotPath != "/channels/ch1/messages/msg1" || gotBody["content"] != "updated" {
		t.Fatalf("unexpected request %s %v", gotPath, gotBody)
	}
}

func TestErrorIncludesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing permissions", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "bot-token")
	err := c.AddMemberRole(context.Background(), "g1", "u1", 42)
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("403 must not map to ErrNotFound: %v", err)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"

	"unilink.org/internal/auth"
	"unilink.org/internal/platform"
	"unilink.org/internal/reconcile"
)

// memLog is an in-process intent log, enough to exercise the queue path.
type memLog struct {
	mu      sync.Mutex
	nextID  int64
	entries []reconcile.LogEntry
}

func (l *memLog) Append(_ context.Context, entries []reconcile.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.nextID++
		e.ID = l.nextID
		l.entries = append(l.entries, e)
	}
	return nil
}

func (l *memLog) DeleteForMember(_ context.Context, guildID, memberID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.GuildID == guildID && e.MemberID == memberID {
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return nil
}

func (l *memLog) All(_ context.Context) ([]reconcile.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]reconcile.LogEntry(nil), l.entries...), nil
}

func (l *memLog) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// stubGuild keeps member role sets in memory.
type stubGuild struct {
	mu    sync.Mutex
	roles map[string][]int64
}

func (g *stubGuild) Member(_ context.Context, guildID, userID string) (*platform.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	roles, ok := g.roles[userID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return &platform.Member{
		GuildID: guildID,
		UserID:  userID,
		RoleIDs: append([]int64(nil), roles...),
	}, nil
}

func (g *stubGuild) AddMemberRole(_ context.Context, _, userID string, roleID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.roles[userID], roleID) {
		g.roles[userID] = append(g.roles[userID], roleID)
	}
	return nil
}

func (g *stubGuild) RemoveMemberRole(_ context.Context, _, userID string, roleID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles[userID] = slices.DeleteFunc(g.roles[userID], func(id int64) bool { return id == roleID })
	return nil
}

func (g *stubGuild) SetNickname(context.Context, string, string, string) error { return nil }
func (g *stubGuild) SendMessage(context.Context, string, string) error         { return nil }
func (g *stubGuild) EditMessage(context.Context, string, string, string) error { return nil }

func (g *stubGuild) memberRoles(userID string) []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]int64(nil), g.roles[userID]...)
	slices.Sort(out)
	return out
}

func main() {
	ctx := context.Background()
	guild := &stubGuild{roles: map[string][]int64{"m1": {2, 3}}}
	intents := &memLog{}

	svc := reconcile.NewService(ctx, intents, guild, nil)

	set := auth.NewDecisionSet()
	set.AddRole(auth.RoleAssignment{RoleID: 1, Description: "Authentication"})
	set.AddRole(auth.RoleAssignment{RoleID: 2, Description: "Bachelor"})
	set.SoftRemoveRole(auth.RoleAssignment{RoleID: 3, Description: "stale"})

	if err := svc.SaveRoles(ctx, "g1", "m1", set); err != nil {
		log.Fatalf("save roles: %v", err)
	}
	svc.EnqueueRoles(&platform.Member{GuildID: "g1", UserID: "m1"}, set, nil)
	svc.Wait()

	if got, want := guild.memberRoles("m1"), []int64{1, 2}; !slices.Equal(got, want) {
		log.Fatalf("roles after apply: %v, want %v", got, want)
	}
	if n := intents.size(); n != 0 {
		log.Fatalf("intent log not cleared: %d entries", n)
	}

	// Simulate a crash between deciding and applying: seed the log directly,
	// then run the startup recovery pass.
	seed := []reconcile.LogEntry{
		{GuildID: "g1", MemberID: "m1", RoleID: 9, Add: true},
		{GuildID: "g1", MemberID: "m1", RoleID: 1, Add: false},
	}
	if err := intents.Append(ctx, seed); err != nil {
		log.Fatalf("seed intent log: %v", err)
	}
	recovered, err := svc.EnqueueRemainingRoles(ctx)
	if err != nil {
		log.Fatalf("recovery: %v", err)
	}
	if recovered != 1 {
		log.Fatalf("recovered %d members, want 1", recovered)
	}
	svc.Wait()
	svc.Close()

	if got, want := guild.memberRoles("m1"), []int64{2, 9}; !slices.Equal(got, want) {
		log.Fatalf("roles after recovery: %v, want %v", got, want)
	}
	if n := intents.size(); n != 0 {
		log.Fatalf("intent log not cleared after recovery: %d entries", n)
	}

	fmt.Println("✅ queue smoke test passed")
}

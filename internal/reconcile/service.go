// Package reconcile applies decided role changes to the chat platform. Every
// decision is written to a durable intent log before the change is attempted,
// so a crash between deciding and applying is repaired on the next startup.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"unilink.org/internal/auth"
	"unilink.org/internal/obs"
	"unilink.org/internal/platform"
	"unilink.org/internal/queue"
	"unilink.org/internal/stream"
)

const queueName = "roles"

// LogEntry is one pending role change in the intent log.
type LogEntry struct {
	ID        int64
	GuildID   string
	MemberID  string
	RoleID    int64
	Add       bool
	CreatedAt time.Time
}

// LogStore persists pending role changes. Entries are returned by All in
// insertion order.
type LogStore interface {
	Append(ctx context.Context, entries []LogEntry) error
	DeleteForMember(ctx context.Context, guildID, memberID string) error
	All(ctx context.Context) ([]LogEntry, error)
}

// RoleJob is one unit of reconciliation work: bring a member's platform roles
// in line with the decided additions and removals.
type RoleJob struct {
	GuildID  string
	MemberID string
	Add      []int64
	Remove   []int64
	Done     func(error)
}

// Option configures a Service.
type Option func(*Service)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxAttempts overrides the queue's per-job attempt budget.
func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

// Service owns the role queue and the intent log.
type Service struct {
	log         LogStore
	client      platform.Client
	events      *stream.Stream
	now         func() time.Time
	maxAttempts int

	queue *queue.Queue[RoleJob]
}

// NewService builds the reconciler and its queue. The context bounds all
// platform calls made by the queue worker.
func NewService(ctx context.Context, log LogStore, client platform.Client, events *stream.Stream, opts ...Option) *Service {
	s := &Service{
		log:    log,
		client: client,
		events: events,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	qopts := []queue.Option[RoleJob]{queue.WithOnDrop[RoleJob](s.onDrop)}
	if s.maxAttempts > 0 {
		qopts = append(qopts, queue.WithMaxAttempts[RoleJob](s.maxAttempts))
	}
	s.queue = queue.New(ctx, queueName, s.apply, qopts...)
	return s
}

// Close drains the queue and stops the worker.
func (s *Service) Close() { s.queue.Close() }

// Wait blocks until the queue worker has exited. Intended for tests and the
// smoke binary.
func (s *Service) Wait() { s.queue.Wait() }

// SaveRoles replaces the member's pending log entries with the given decision
// set. A newer attempt supersedes whatever an older one left behind.
func (s *Service) SaveRoles(ctx context.Context, guildID, memberID string, set *auth.DecisionSet) error {
	if err := s.log.DeleteForMember(ctx, guildID, memberID); err != nil {
		return fmt.Errorf("clear role log: %w", err)
	}
	now := s.now().UTC()
	var entries []LogEntry
	for _, role := range set.ToAdd() {
		entries = append(entries, LogEntry{
			GuildID:   guildID,
			MemberID:  memberID,
			RoleID:    role.RoleID,
			Add:       true,
			CreatedAt: now,
		})
	}
	for _, role := range set.ToSoftRemove() {
		entries = append(entries, LogEntry{
			GuildID:   guildID,
			MemberID:  memberID,
			RoleID:    role.RoleID,
			Add:       false,
			CreatedAt: now,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.log.Append(ctx, entries); err != nil {
		return fmt.Errorf("append role log: %w", err)
	}
	return nil
}

// EnqueueRoles schedules the decided changes for the member. The member's
// live snapshot is re-fetched by the worker, so the snapshot passed here is
// only used for identity.
func (s *Service) EnqueueRoles(member *platform.Member, set *auth.DecisionSet, done func(error)) {
	job := RoleJob{
		GuildID:  member.GuildID,
		MemberID: member.UserID,
		Add:      auth.RoleIDs(set.ToAdd()),
		Remove:   auth.RoleIDs(set.ToSoftRemove()),
		Done:     done,
	}
	s.queue.Enqueue(job)
}

// EnqueueRemainingRoles reads the intent log and re-enqueues one job per
// member that still has pending changes. Called once at startup; returns the
// number of members scheduled.
func (s *Service) EnqueueRemainingRoles(ctx context.Context) (int, error) {
	entries, err := s.log.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("read role log: %w", err)
	}
	type key struct{ guildID, memberID string }
	groups := make(map[key][]LogEntry)
	var order []key
	for _, e := range entries {
		k := key{e.GuildID, e.MemberID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].guildID != order[j].guildID {
			return order[i].guildID < order[j].guildID
		}
		return order[i].memberID < order[j].memberID
	})

	scheduled := 0
	for _, k := range order {
		member, err := s.client.Member(ctx, k.guildID, k.memberID)
		if errors.Is(err, platform.ErrNotFound) {
			// The member left; nothing to reconcile.
			if derr := s.log.DeleteForMember(ctx, k.guildID, k.memberID); derr != nil {
				return scheduled, fmt.Errorf("clear role log for departed member: %w", derr)
			}
			obs.Info("member gone, pending role changes discarded", map[string]any{
				"guild_id":  k.guildID,
				"member_id": k.memberID,
			})
			continue
		}
		if err != nil {
			return scheduled, fmt.Errorf("fetch member: %w", err)
		}

		// The log is ordered, so the last action recorded for a role wins.
		latest := make(map[int64]bool)
		var roleOrder []int64
		for _, e := range groups[k] {
			if _, ok := latest[e.RoleID]; !ok {
				roleOrder = append(roleOrder, e.RoleID)
			}
			latest[e.RoleID] = e.Add
		}
		job := RoleJob{GuildID: k.guildID, MemberID: k.memberID}
		for _, roleID := range roleOrder {
			if latest[roleID] && !member.HasRole(roleID) {
				job.Add = append(job.Add, roleID)
			}
			if !latest[roleID] && member.HasRole(roleID) {
				job.Remove = append(job.Remove, roleID)
			}
		}
		s.queue.Enqueue(job)
		scheduled++
	}
	return scheduled, nil
}

// apply is the queue handler. It diffs the decided changes against the
// member's live roles and performs only the calls that are still needed.
func (s *Service) apply(ctx context.Context, job RoleJob) error {
	member, err := s.client.Member(ctx, job.GuildID, job.MemberID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			// The member left; their pending changes are moot.
			if derr := s.log.DeleteForMember(ctx, job.GuildID, job.MemberID); derr != nil {
				return fmt.Errorf("clear role log for departed member: %w", derr)
			}
			obs.Info("member gone, pending role changes discarded", map[string]any{
				"guild_id":  job.GuildID,
				"member_id": job.MemberID,
			})
			s.finish(job, nil)
			return nil
		}
		return fmt.Errorf("fetch member: %w", err)
	}

	var applied []stream.RoleChangeEvent
	for _, roleID := range job.Add {
		if member.HasRole(roleID) {
			continue
		}
		if err := s.client.AddMemberRole(ctx, job.GuildID, job.MemberID, roleID); err != nil {
			return fmt.Errorf("add role %d: %w", roleID, err)
		}
		obs.IncRoleChange("add")
		applied = append(applied, s.event(job, roleID, "add"))
	}
	for _, roleID := range job.Remove {
		if !member.HasRole(roleID) {
			continue
		}
		if err := s.client.RemoveMemberRole(ctx, job.GuildID, job.MemberID, roleID); err != nil {
			return fmt.Errorf("remove role %d: %w", roleID, err)
		}
		obs.IncRoleChange("remove")
		applied = append(applied, s.event(job, roleID, "remove"))
	}

	if err := s.log.DeleteForMember(ctx, job.GuildID, job.MemberID); err != nil {
		return fmt.Errorf("clear role log: %w", err)
	}
	if s.events != nil {
		for _, evt := range applied {
			s.events.Publish(evt)
		}
	}
	s.finish(job, nil)
	return nil
}

// onDrop runs after a job exhausts its attempts. The log entries stay in
// place so the next startup recovery retries the member.
func (s *Service) onDrop(job RoleJob, err error) {
	obs.Error("role changes not applied, will retry on next startup", map[string]any{
		"guild_id":  job.GuildID,
		"member_id": job.MemberID,
		"error":     err.Error(),
	})
	s.finish(job, err)
}

func (s *Service) event(job RoleJob, roleID int64, action string) stream.RoleChangeEvent {
	return stream.RoleChangeEvent{
		GuildID:   job.GuildID,
		MemberID:  job.MemberID,
		RoleID:    roleID,
		Action:    action,
		Timestamp: s.now().UTC(),
	}
}

func (s *Service) finish(job RoleJob, err error) {
	if job.Done != nil {
		job.Done(err)
	}
}

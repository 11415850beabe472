package stream

import (
	"context"
	"sync"
	"time"
)

// RoleChangeEvent describes one applied role change for live consumers.
type RoleChangeEvent struct {
	GuildID   string    `json:"guild_id"`
	MemberID  string    `json:"member_id"`
	RoleID    int64     `json:"role_id"`
	Action    string    `json:"action"` // "add" or "remove"
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs role change events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan RoleChangeEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan RoleChangeEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan RoleChangeEvent {
	ch := make(chan RoleChangeEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt RoleChangeEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

package auth

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemory implements UserStore and MappingStore with in-process concurrency
// safety. Used by tests and the smoke tooling; production uses the Postgres
// store.
type InMemory struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*AuthUser

	byName      map[string]RoleMapping
	byProgramme map[string][]RoleMapping
	byYear      map[int][]RoleMapping
	byTitle     map[string][]RoleMapping
	byTag       map[string][]RoleMapping
	tagPatterns []tagPattern
}

type tagPattern struct {
	re      *regexp.Regexp
	mapping RoleMapping
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:       make(map[int64]*AuthUser),
		byName:      make(map[string]RoleMapping),
		byProgramme: make(map[string][]RoleMapping),
		byYear:      make(map[int][]RoleMapping),
		byTitle:     make(map[string][]RoleMapping),
		byTag:       make(map[string][]RoleMapping),
	}
}

var (
	_ UserStore    = (*InMemory)(nil)
	_ MappingStore = (*InMemory)(nil)
)

func (s *InMemory) Create(ctx context.Context, u *AuthUser) error {
	if u == nil || strings.TrimSpace(u.MemberID) == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.MemberID == u.MemberID {
			return ErrAlreadyExists
		}
	}
	s.nextID++
	u.ID = s.nextID
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *InMemory) FindByMember(ctx context.Context, memberID string) (*AuthUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.MemberID == memberID {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemory) FindByUsername(ctx context.Context, username string) ([]*AuthUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*AuthUser
	for _, u := range s.users {
		if u.Username == username && username != "" {
			clone := *u
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, u *AuthUser) error {
	if u == nil {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *InMemory) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// AddNameMapping registers a name→role mapping.
func (s *InMemory) AddNameMapping(m RoleMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[m.Name] = m
}

// AddProgrammeMapping registers a programme-title mapping.
func (s *InMemory) AddProgrammeMapping(title string, m RoleMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byProgramme[title] = append(s.byProgramme[title], m)
}

// AddYearMapping registers a start-year mapping.
func (s *InMemory) AddYearMapping(year int, m RoleMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byYear[year] = append(s.byYear[year], m)
}

// AddTitleMapping registers a title-token mapping.
func (s *InMemory) AddTitleMapping(title string, m RoleMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTitle[title] = append(s.byTitle[title], m)
}

// AddTagMapping registers an exact role-tag mapping.
func (s *InMemory) AddTagMapping(tag string, m RoleMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTag[tag] = append(s.byTag[tag], m)
}

// AddTagPattern registers a regular-expression role-tag mapping.
func (s *InMemory) AddTagPattern(pattern string, m RoleMapping) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tagPatterns = append(s.tagPatterns, tagPattern{re: re, mapping: m})
	return nil
}

func (s *InMemory) RoleByName(ctx context.Context, name string) (RoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byName[name]
	if !ok {
		return RoleMapping{}, ErrNotFound
	}
	return m, nil
}

func (s *InMemory) RolesByProgramme(ctx context.Context, programmeTitle string) ([]RoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RoleMapping(nil), s.byProgramme[programmeTitle]...), nil
}

func (s *InMemory) RolesByYear(ctx context.Context, year int) ([]RoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RoleMapping(nil), s.byYear[year]...), nil
}

func (s *InMemory) RolesByTitle(ctx context.Context, title string) ([]RoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RoleMapping(nil), s.byTitle[title]...), nil
}

func (s *InMemory) RolesByTag(ctx context.Context, tag string) ([]RoleMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]RoleMapping(nil), s.byTag[tag]...)
	for _, p := range s.tagPatterns {
		if p.re.MatchString(tag) {
			out = append(out, p.mapping)
		}
	}
	return out, nil
}

func (s *InMemory) GrantableRoleIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []int64
	add := func(m RoleMapping) {
		if _, ok := seen[m.RoleID]; ok {
			return
		}
		seen[m.RoleID] = struct{}{}
		out = append(out, m.RoleID)
	}
	for _, m := range s.byName {
		add(m)
	}
	for _, list := range s.byProgramme {
		for _, m := range list {
			add(m)
		}
	}
	for _, list := range s.byYear {
		for _, m := range list {
			add(m)
		}
	}
	for _, list := range s.byTitle {
		for _, m := range list {
			add(m)
		}
	}
	for _, list := range s.byTag {
		for _, m := range list {
			add(m)
		}
	}
	for _, p := range s.tagPatterns {
		add(p.mapping)
	}
	return out, nil
}

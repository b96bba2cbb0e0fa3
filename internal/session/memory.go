package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
)

// MemoryStore implements Store with in-process maps and a mutex per principal.
// Writes inside Within apply immediately; there is no rollback.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memEntry
	seq      uint64

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

type memEntry struct {
	seq     uint64
	session domain.Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memEntry),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryStore) principalLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Within serializes fn against every other Within call for the same principal.
func (s *MemoryStore) Within(_ context.Context, principalID uuid.UUID, fn func(tx Tx) error) error {
	l := s.principalLock(principalID)
	l.Lock()
	defer l.Unlock()

	return fn(&memTx{store: s, principalID: principalID})
}

// FindByToken returns a copy of the session, or nil if unknown.
func (s *MemoryStore) FindByToken(_ context.Context, token string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	sess := e.session
	return &sess, nil
}

func (s *MemoryStore) CountActive(_ context.Context, principalID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.sessions {
		if e.session.Active && e.session.PrincipalID == principalID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListActive(_ context.Context, principalID uuid.UUID) ([]domain.Session, error) {
	return s.collect(func(sess domain.Session) bool {
		return sess.Active && sess.PrincipalID == principalID
	}, false), nil
}

// Deactivate is idempotent; unknown and inactive tokens return nil.
func (s *MemoryStore) Deactivate(_ context.Context, token string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok || !e.session.Active {
		return nil, nil
	}
	e.session.Active = false
	sess := e.session
	return &sess, nil
}

func (s *MemoryStore) Touch(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[token]; ok && e.session.Active {
		e.session.LastSeenAt = at
	}
	return nil
}

func (s *MemoryStore) Search(_ context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	out := s.collect(func(sess domain.Session) bool {
		if filter.PrincipalID != nil && sess.PrincipalID != *filter.PrincipalID {
			return false
		}
		return !filter.ActiveOnly || sess.Active
	}, true)

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// collect returns matching sessions in insertion order, or newest first when desc is set.
func (s *MemoryStore) collect(match func(domain.Session) bool, desc bool) []domain.Session {
	s.mu.RLock()
	entries := make([]*memEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		if match(e.session) {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if desc {
			return entries[i].seq > entries[j].seq
		}
		return entries[i].seq < entries[j].seq
	})

	out := make([]domain.Session, len(entries))
	for i, e := range entries {
		out[i] = e.session
	}
	return out
}

type memTx struct {
	store       *MemoryStore
	principalID uuid.UUID
}

func (t *memTx) Insert(_ context.Context, sess *domain.Session) error {
	if sess.PrincipalID != t.principalID {
		return fmt.Errorf("insert session: principal %s outside scope %s", sess.PrincipalID, t.principalID)
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if _, exists := t.store.sessions[sess.Token]; exists {
		return domain.ErrConflict("session token already issued")
	}
	t.store.seq++
	t.store.sessions[sess.Token] = &memEntry{seq: t.store.seq, session: *sess}
	return nil
}

func (t *memTx) CountActive(ctx context.Context) (int, error) {
	return t.store.CountActive(ctx, t.principalID)
}

func (t *memTx) ListActive(ctx context.Context) ([]domain.Session, error) {
	return t.store.ListActive(ctx, t.principalID)
}

func (t *memTx) Deactivate(_ context.Context, token string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	e, ok := t.store.sessions[token]
	if !ok || !e.session.Active || e.session.PrincipalID != t.principalID {
		return false, nil
	}
	e.session.Active = false
	return true, nil
}

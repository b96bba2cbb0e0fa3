package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

type fakeDirectory struct {
	principals map[uuid.UUID]*domain.Principal
	err        error
}

func newFakeDirectory(ps ...*domain.Principal) *fakeDirectory {
	d := &fakeDirectory{principals: make(map[uuid.UUID]*domain.Principal)}
	for _, p := range ps {
		d.principals[p.ID] = p
	}
	return d
}

func (d *fakeDirectory) FindPrincipal(_ context.Context, id uuid.UUID) (*domain.Principal, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.principals[id], nil
}

type recordingTerminator struct {
	mu     sync.Mutex
	tokens []string
	fail   map[string]error
	panics map[string]bool
}

func (r *recordingTerminator) Terminate(_ context.Context, token string) error {
	r.mu.Lock()
	r.tokens = append(r.tokens, token)
	r.mu.Unlock()
	if r.panics[token] {
		panic("connection already closed")
	}
	return r.fail[token]
}

func (r *recordingTerminator) terminated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tokens...)
}

// failingStore makes Tx.Deactivate fail for one token.
type failingStore struct {
	*MemoryStore
	failToken string
}

func (f *failingStore) Within(ctx context.Context, id uuid.UUID, fn func(tx Tx) error) error {
	return f.MemoryStore.Within(ctx, id, func(tx Tx) error {
		return fn(&failingTx{Tx: tx, failToken: f.failToken})
	})
}

type failingTx struct {
	Tx
	failToken string
}

func (t *failingTx) Deactivate(ctx context.Context, token string) (bool, error) {
	if token == t.failToken {
		return false, errors.New("row lock timeout")
	}
	return t.Tx.Deactivate(ctx, token)
}

func newPrincipal(name string) *domain.Principal {
	return &domain.Principal{ID: uuid.New(), Username: name}
}

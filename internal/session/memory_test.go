package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *MemoryStore, principalID uuid.UUID, tokens ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Within(ctx, principalID, func(tx Tx) error {
		for _, tok := range tokens {
			if err := tx.Insert(ctx, &domain.Session{Token: tok, PrincipalID: principalID, Active: true, CreatedAt: time.Now()}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestMemoryStore_TxScopedToPrincipal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, q := uuid.New(), uuid.New()
	seed(t, s, q, "q1")

	err := s.Within(ctx, p, func(tx Tx) error {
		changed, err := tx.Deactivate(ctx, "q1")
		assert.False(t, changed)
		return err
	})
	require.NoError(t, err)

	err = s.Within(ctx, p, func(tx Tx) error {
		return tx.Insert(ctx, &domain.Session{Token: "x", PrincipalID: q, Active: true})
	})
	assert.Error(t, err)

	sess, _ := s.FindByToken(ctx, "q1")
	assert.True(t, sess.Active)
}

func TestMemoryStore_FindByTokenReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := uuid.New()
	seed(t, s, p, "a")

	sess, err := s.FindByToken(ctx, "a")
	require.NoError(t, err)
	sess.Active = false

	again, _ := s.FindByToken(ctx, "a")
	assert.True(t, again.Active)

	missing, err := s.FindByToken(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_Search(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, q := uuid.New(), uuid.New()
	seed(t, s, p, "p1", "p2", "p3")
	seed(t, s, q, "q1")
	_, _ = s.Deactivate(ctx, "p2")

	all, err := s.Search(ctx, domain.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "q1", all[0].Token, "newest first")

	active, _ := s.Search(ctx, domain.SessionFilter{PrincipalID: &p, ActiveOnly: true})
	require.Len(t, active, 2)
	assert.Equal(t, "p3", active[0].Token)
	assert.Equal(t, "p1", active[1].Token)

	page, _ := s.Search(ctx, domain.SessionFilter{Limit: 2, Offset: 1})
	require.Len(t, page, 2)
	assert.Equal(t, "p3", page[0].Token)

	empty, _ := s.Search(ctx, domain.SessionFilter{Offset: 10})
	assert.Empty(t, empty)
}

func TestMemoryStore_TouchIgnoresInactive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := uuid.New()
	seed(t, s, p, "a")
	_, _ = s.Deactivate(ctx, "a")

	before, _ := s.FindByToken(ctx, "a")
	require.NoError(t, s.Touch(ctx, "a", time.Now().Add(time.Hour)))
	after, _ := s.FindByToken(ctx, "a")
	assert.Equal(t, before.LastSeenAt, after.LastSeenAt)
}

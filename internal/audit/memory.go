package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
)

// MemoryLog is an in-process EventLog.
type MemoryLog struct {
	mu     sync.RWMutex
	events []domain.EnforcementEvent
}

var _ EventLog = (*MemoryLog)(nil)

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Record(_ context.Context, ev domain.EnforcementEvent) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *MemoryLog) Recent(_ context.Context, principalID uuid.UUID, limit int) ([]domain.EnforcementEvent, error) {
	limit = ClampLimit(limit)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.EnforcementEvent
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		if l.events[i].PrincipalID == principalID {
			out = append(out, l.events[i])
		}
	}
	return out, nil
}

// All returns every recorded event in insertion order.
func (l *MemoryLog) All() []domain.EnforcementEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.EnforcementEvent(nil), l.events...)
}

package risk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/audit"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type directory map[uuid.UUID]*domain.Principal

func (d directory) FindPrincipal(_ context.Context, id uuid.UUID) (*domain.Principal, error) {
	return d[id], nil
}

type terminations struct {
	mu       sync.Mutex
	tokens   []string
	fail     map[string]bool
	ctxAlive bool
}

func (t *terminations) Terminate(ctx context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens = append(t.tokens, token)
	t.ctxAlive = ctx.Err() == nil
	if t.fail[token] {
		return errors.New("live connection write failed")
	}
	return nil
}

type fixture struct {
	principal *domain.Principal
	registry  *session.Registry
	events    *audit.MemoryLog
	term      *terminations
	eval      *Evaluator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	p := &domain.Principal{ID: uuid.New(), Username: "alice"}
	term := &terminations{fail: map[string]bool{}}
	logger := slog.New(slog.DiscardHandler)
	reg := session.NewRegistry(session.NewMemoryStore(), directory{p.ID: p}, term, logger)
	events := audit.NewMemoryLog()
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return &fixture{
		principal: p,
		registry:  reg,
		events:    events,
		term:      term,
		eval:      NewEvaluator(cfg, reg, events, metrics, logger),
	}
}

func (f *fixture) register(t *testing.T, tokens ...string) {
	t.Helper()
	for _, tok := range tokens {
		_, err := f.registry.Register(context.Background(), f.principal.ID, tok, "device", "203.0.113.7")
		require.NoError(t, err)
	}
}

func (f *fixture) activeTokens(t *testing.T) []string {
	t.Helper()
	list, err := f.registry.ListActive(context.Background(), f.principal.ID)
	require.NoError(t, err)
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Token)
	}
	return out
}

func TestEvaluate_LoginSequenceWithCapTwo(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	f.register(t, "A", "B")
	eval, err := f.eval.Evaluate(ctx, f.principal.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionNone, eval.Action)
	assert.False(t, eval.CapExceeded)
	assert.Equal(t, []string{"A", "B"}, f.activeTokens(t))
	assert.Empty(t, f.events.All())

	f.register(t, "C")
	eval, err = f.eval.Evaluate(ctx, f.principal.ID, "C")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionOtherSessionsInvalidated, eval.Action)
	assert.True(t, eval.CapExceeded)
	assert.Equal(t, domain.RiskCritical, eval.Tier)
	assert.Equal(t, 3, eval.ActiveSessions)
	assert.Equal(t, 2, eval.Deactivated)
	assert.Equal(t, []string{"C"}, f.activeTokens(t))

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].ActiveSessions)
	assert.Equal(t, 2, events[0].AllowedSessions)
	assert.Equal(t, 150.0, events[0].RiskSignal)
	assert.Equal(t, "alice", events[0].DisplayName)
	assert.Equal(t, domain.ActionOtherSessionsInvalidated, events[0].Action)
	assert.Contains(t, events[0].Description, "3 active sessions (allowed: 2)")
	assert.Contains(t, events[0].Description, "150.00%")

	assert.ElementsMatch(t, []string{"A", "B"}, f.term.tokens)
}

func TestEvaluate_SnapshotFields(t *testing.T) {
	f := newFixture(t, Config{MaxAllowedSessions: 4, DisplayThresholdPercent: 70})
	f.register(t, "A", "B", "C")

	eval, err := f.eval.Evaluate(context.Background(), f.principal.ID, "C")
	require.NoError(t, err)
	assert.Equal(t, f.principal.ID, eval.PrincipalID)
	assert.Equal(t, "alice", eval.DisplayName)
	assert.Equal(t, 3, eval.ActiveSessions)
	assert.Equal(t, 4, eval.AllowedSessions)
	assert.Equal(t, 75.0, eval.RiskSignal)
	assert.Equal(t, domain.RiskMedium, eval.Tier)
	assert.True(t, eval.AboveDisplayThreshold)
	assert.False(t, eval.CapExceeded)
	assert.NotEmpty(t, eval.Message)
	assert.False(t, eval.EvaluatedAt.IsZero())
}

func TestEvaluate_DisplayThresholdNeverEnforces(t *testing.T) {
	f := newFixture(t, Config{MaxAllowedSessions: 2, DisplayThresholdPercent: 10})
	f.register(t, "A", "B")

	eval, err := f.eval.Evaluate(context.Background(), f.principal.ID, "B")
	require.NoError(t, err)
	assert.True(t, eval.AboveDisplayThreshold)
	assert.Equal(t, domain.ActionNone, eval.Action)
	assert.Len(t, f.activeTokens(t), 2)
}

func TestEvaluate_NoSurvivorDeactivatesAll(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.register(t, "A", "B", "C")

	eval, err := f.eval.Evaluate(context.Background(), f.principal.ID, domain.NoSurvivor)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionOtherSessionsInvalidated, eval.Action)
	assert.Equal(t, 3, eval.Deactivated)
	assert.Empty(t, f.activeTokens(t))
}

func TestEvaluate_UnknownSurvivorDeactivatesAll(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.register(t, "A", "B", "C")

	_, err := f.eval.Evaluate(context.Background(), f.principal.ID, "not-a-session")
	require.NoError(t, err)
	assert.Empty(t, f.activeTokens(t))
}

func TestEvaluate_ZeroCap(t *testing.T) {
	f := newFixture(t, Config{MaxAllowedSessions: 0, DisplayThresholdPercent: 70})
	f.register(t, "A")

	eval, err := f.eval.Evaluate(context.Background(), f.principal.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, 0.0, eval.RiskSignal)
	assert.True(t, eval.CapExceeded)
	assert.Equal(t, domain.ActionOtherSessionsInvalidated, eval.Action)
	assert.Equal(t, 0, eval.Deactivated)
	assert.Equal(t, []string{"A"}, f.activeTokens(t))
	assert.Len(t, f.events.All(), 1)
}

func TestEvaluate_PrincipalNotFound(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.eval.Evaluate(context.Background(), uuid.New(), "A")
	require.Error(t, err)
	assert.True(t, domain.IsPrincipalNotFound(err))
	assert.Empty(t, f.events.All())
}

func TestEvaluate_TerminationFailureIsContained(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.register(t, "A", "B", "C", "D")
	f.term.fail["A"] = true

	eval, err := f.eval.Evaluate(context.Background(), f.principal.ID, "D")
	require.NoError(t, err)
	assert.Equal(t, 3, eval.Deactivated)
	assert.Equal(t, []string{"D"}, f.activeTokens(t))
	assert.ElementsMatch(t, []string{"A", "B", "C"}, f.term.tokens)
}

func TestEvaluate_RunsToCompletionOnCancelledContext(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.register(t, "A", "B", "C")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eval, err := f.eval.Evaluate(ctx, f.principal.ID, "C")
	require.NoError(t, err)
	assert.Equal(t, 2, eval.Deactivated)
	assert.True(t, f.term.ctxAlive)
	assert.Len(t, f.events.All(), 1)
}

func TestPeek_NeverMutates(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.register(t, "A", "B", "C")
	ctx := context.Background()

	before, _ := f.registry.CountActive(ctx, f.principal.ID)
	eval, err := f.eval.Peek(ctx, f.principal.ID)
	require.NoError(t, err)
	after, _ := f.registry.CountActive(ctx, f.principal.ID)

	assert.Equal(t, before, after)
	assert.True(t, eval.CapExceeded)
	assert.Equal(t, domain.RiskCritical, eval.Tier)
	assert.Equal(t, domain.ActionNone, eval.Action)
	assert.Zero(t, eval.Deactivated)
	assert.Empty(t, f.events.All())
	assert.Empty(t, f.term.tokens)
}

func TestPeek_PrincipalNotFound(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, err := f.eval.Peek(context.Background(), uuid.New())
	assert.True(t, domain.IsPrincipalNotFound(err))
}

func TestInvalidateAll(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.register(t, "A", "B")

	eval, err := f.eval.InvalidateAll(context.Background(), f.principal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionOtherSessionsInvalidated, eval.Action)
	assert.Equal(t, 2, eval.ActiveSessions)
	assert.Equal(t, 2, eval.Deactivated)
	assert.Empty(t, f.activeTokens(t))

	events := f.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, domain.ActionOtherSessionsInvalidated, events[0].Action)
}

func TestInvalidateAll_MatchesEvaluateWithoutSurvivor(t *testing.T) {
	ctx := context.Background()

	viaEvaluate := newFixture(t, Config{MaxAllowedSessions: 1, DisplayThresholdPercent: 70})
	viaEvaluate.register(t, "A", "B")
	evaluated, err := viaEvaluate.eval.Evaluate(ctx, viaEvaluate.principal.ID, domain.NoSurvivor)
	require.NoError(t, err)

	viaInvalidate := newFixture(t, Config{MaxAllowedSessions: 1, DisplayThresholdPercent: 70})
	viaInvalidate.register(t, "A", "B")
	invalidated, err := viaInvalidate.eval.InvalidateAll(ctx, viaInvalidate.principal.ID)
	require.NoError(t, err)

	assert.Equal(t, evaluated.Action, invalidated.Action)
	assert.Equal(t, evaluated.Deactivated, invalidated.Deactivated)
	require.Len(t, viaEvaluate.events.All(), 1)
	require.Len(t, viaInvalidate.events.All(), 1)
	assert.Equal(t, viaEvaluate.events.All()[0].Action, viaInvalidate.events.All()[0].Action)
}

func TestInvalidateAll_NoActiveSessions(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	eval, err := f.eval.InvalidateAll(context.Background(), f.principal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionNone, eval.Action)
	assert.Zero(t, eval.ActiveSessions)
	assert.Zero(t, eval.Deactivated)
	assert.Empty(t, f.events.All())
	assert.Empty(t, f.term.tokens)
}

func TestInvalidateAll_PrincipalNotFound(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, err := f.eval.InvalidateAll(context.Background(), uuid.New())
	assert.True(t, domain.IsPrincipalNotFound(err))
}

func TestRecentEvents(t *testing.T) {
	f := newFixture(t, Config{MaxAllowedSessions: 1, DisplayThresholdPercent: 70})
	ctx := context.Background()

	f.register(t, "A", "B")
	_, err := f.eval.Evaluate(ctx, f.principal.ID, "B")
	require.NoError(t, err)
	f.register(t, "C")
	_, err = f.eval.Evaluate(ctx, f.principal.ID, "C")
	require.NoError(t, err)

	events, err := f.eval.RecentEvents(ctx, f.principal.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.False(t, events[0].OccurredAt.Before(events[1].OccurredAt), "newest first")

	_, err = f.eval.RecentEvents(ctx, uuid.New(), 10)
	assert.True(t, domain.IsPrincipalNotFound(err))
}

func TestConcurrentLoginsSettleUnderCap(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			if _, err := f.registry.Register(ctx, f.principal.ID, tok, "", ""); err != nil {
				t.Error(err)
				return
			}
			if _, err := f.eval.Evaluate(ctx, f.principal.ID, tok); err != nil {
				t.Error(err)
			}
		}(uuid.NewString())
	}
	wg.Wait()

	n, err := f.registry.CountActive(ctx, f.principal.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 2)
}

func TestMetrics_RecordsEvaluations(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("risk-test"))
	require.NoError(t, err)

	f := newFixture(t, DefaultConfig())
	f.eval.metrics = metrics
	f.register(t, "A", "B", "C")
	_, err = f.eval.Evaluate(context.Background(), f.principal.ID, "C")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["riskguard.evaluations"])
	assert.Equal(t, int64(2), sums["riskguard.sessions.deactivated"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.eval.metrics = nil
	f.register(t, "A")
	_, err := f.eval.Evaluate(context.Background(), f.principal.ID, "A")
	assert.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.NoError(t, Config{MaxAllowedSessions: 0}.Validate())
	assert.Error(t, Config{MaxAllowedSessions: -1}.Validate())
	assert.Error(t, Config{MaxAllowedSessions: 2, DisplayThresholdPercent: -5}.Validate())
	assert.NoError(t, Config{MaxAllowedSessions: 2, DisplayThresholdPercent: 100}.Validate())
	assert.Error(t, Config{MaxAllowedSessions: 2, DisplayThresholdPercent: 100.5}.Validate())
	assert.Error(t, Config{MaxAllowedSessions: 2, DisplayThresholdPercent: 150}.Validate())
}

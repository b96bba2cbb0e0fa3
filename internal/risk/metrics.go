package risk

import (
	"context"

	"github.com/riskguard/platform/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the evaluator's OpenTelemetry instruments. A nil *Metrics records nothing.
type Metrics struct {
	evaluations metric.Int64Counter
	deactivated metric.Int64Counter
	signal      metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	evaluations, err := meter.Int64Counter("riskguard.evaluations",
		metric.WithDescription("Session risk evaluations by action and tier"))
	if err != nil {
		return nil, err
	}
	deactivated, err := meter.Int64Counter("riskguard.sessions.deactivated",
		metric.WithDescription("Sessions deactivated by enforcement"))
	if err != nil {
		return nil, err
	}
	signal, err := meter.Float64Histogram("riskguard.risk_signal",
		metric.WithDescription("Active sessions as a percentage of the cap"),
		metric.WithUnit("%"))
	if err != nil {
		return nil, err
	}
	return &Metrics{evaluations: evaluations, deactivated: deactivated, signal: signal}, nil
}

func (m *Metrics) record(ctx context.Context, eval *domain.RiskEvaluation, mode string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", string(eval.Action)),
		attribute.String("tier", string(eval.Tier)),
		attribute.String("mode", mode),
	)
	m.evaluations.Add(ctx, 1, attrs)
	m.signal.Record(ctx, eval.RiskSignal, metric.WithAttributes(attribute.String("mode", mode)))
	if eval.Deactivated > 0 {
		m.deactivated.Add(ctx, int64(eval.Deactivated), metric.WithAttributes(attribute.String("action", string(eval.Action))))
	}
}

package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/guard"
	"github.com/riskguard/platform/internal/repository"
)

// Publisher delivers a message to a broker topic. *KafkaProducer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// RelayConfig tunes the outbox relay.
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	TopicPrefix string
}

// OutboxRelay polls event_outbox and publishes rows in id order.
// Repeated broker failures open a circuit breaker and pause publishing.
type OutboxRelay struct {
	db        repository.DBTX
	outbox    repository.OutboxRepository
	publisher Publisher
	breaker   *guard.CircuitBreaker
	cfg       RelayConfig
	logger    *slog.Logger
}

const relayCircuitKey = "outbox-publisher"

// NewOutboxRelay creates a relay. A nil breaker disables circuit breaking.
func NewOutboxRelay(db repository.DBTX, outbox repository.OutboxRepository, publisher Publisher, breaker *guard.CircuitBreaker, cfg RelayConfig, logger *slog.Logger) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "riskguard"
	}
	return &OutboxRelay{db: db, outbox: outbox, publisher: publisher, breaker: breaker, cfg: cfg, logger: logger}
}

// Run polls until ctx is cancelled. It returns nil on cancellation.
func (r *OutboxRelay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started", "interval", r.cfg.Interval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil {
				r.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// Poll publishes one batch and returns how many rows were published.
// Publishing stops at the first broker failure so rows stay ordered.
func (r *OutboxRelay) Poll(ctx context.Context) (int, error) {
	if r.breaker != nil {
		if res := r.breaker.Check(ctx, relayCircuitKey); !res.Allowed {
			r.logger.Debug("outbox relay paused", "reason", res.Reason)
			return 0, nil
		}
	}

	rows, err := r.outbox.FetchUnpublished(ctx, r.db, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(rows))
	var publishErr error
	for _, row := range rows {
		msg, err := envelope(row)
		if err != nil {
			r.logger.Error("outbox envelope failed", "event_id", row.EventID, "error", err)
			continue
		}
		if err := r.publisher.Publish(ctx, row.Topic(r.cfg.TopicPrefix), []byte(row.PartitionKey), msg); err != nil {
			publishErr = fmt.Errorf("publish %s: %w", row.EventID, err)
			break
		}
		published = append(published, row.ID)
	}

	if r.breaker != nil {
		if publishErr != nil {
			r.breaker.RecordFailure(relayCircuitKey)
		} else {
			r.breaker.RecordSuccess(relayCircuitKey)
		}
	}

	if err := r.outbox.MarkPublished(ctx, r.db, published); err != nil {
		return 0, err
	}
	r.logger.Debug("outbox poll complete", "published", len(published))
	return len(published), publishErr
}

func envelope(row domain.OutboxRow) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event_id":       row.EventID,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID,
		"event_type":     row.EventType,
		"headers":        row.Headers,
		"payload":        row.Payload,
		"occurred_at":    row.OccurredAt,
	})
}

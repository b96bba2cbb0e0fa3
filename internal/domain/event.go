package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventPrincipalCreated EventType = "principal.created"
	EventSessionCreated   EventType = "session.created"
	EventSessionRevoked   EventType = "session.revoked"
	EventRiskEnforced     EventType = "risk.enforced"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregatePrincipal AggregateType = "principal"
	AggregateSession   AggregateType = "session"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an event_outbox row read back by the relay.
type OutboxRow struct {
	OutboxDraft
	ID int64 `json:"id"`
}

// Topic is the broker topic for the row, e.g. "riskguard.session.session.revoked".
func (d OutboxDraft) Topic(prefix string) string {
	return prefix + "." + string(d.AggregateType) + "." + string(d.EventType)
}

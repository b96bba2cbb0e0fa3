package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewPrincipalCreatedEvent is emitted when an account is registered or seeded.
func NewPrincipalCreatedEvent(p *Principal) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"principal_id": p.ID.String(),
		"username":     p.Username,
		"privileged":   p.Privileged,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePrincipal,
		AggregateID:   p.ID.String(),
		EventType:     EventPrincipalCreated,
		PartitionKey:  p.ID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewSessionCreatedEvent records a newly registered session.
func NewSessionCreatedEvent(s *Session) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"principal_id":   s.PrincipalID.String(),
		"session_token":  s.Token,
		"device_id":      s.DeviceID,
		"source_address": s.SourceAddress,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSession,
		AggregateID:   s.Token,
		EventType:     EventSessionCreated,
		PartitionKey:  s.PrincipalID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    s.CreatedAt,
	}
}

// NewSessionRevokedEvent records a session moving to active=false.
func NewSessionRevokedEvent(principalID uuid.UUID, token string) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"principal_id":  principalID.String(),
		"session_token": token,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSession,
		AggregateID:   token,
		EventType:     EventSessionRevoked,
		PartitionKey:  principalID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRiskEnforcedEvent mirrors an enforcement audit row onto the outbox.
func NewRiskEnforcedEvent(ev EnforcementEvent) OutboxDraft {
	payload, _ := json.Marshal(ev)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePrincipal,
		AggregateID:   ev.PrincipalID.String(),
		EventType:     EventRiskEnforced,
		PartitionKey:  ev.PrincipalID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    ev.OccurredAt,
	}
}

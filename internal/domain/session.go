package domain

import (
	"time"

	"github.com/google/uuid"
)

// NoSurvivor is the surviving-token value meaning every active session is deactivated.
const NoSurvivor = ""

// Session is one authenticated login. Active=false is terminal.
type Session struct {
	Token         string    `json:"token"`
	PrincipalID   uuid.UUID `json:"principal_id"`
	DeviceID      string    `json:"device_id"`
	SourceAddress string    `json:"source_address"`
	CreatedAt     time.Time `json:"created_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	Active        bool      `json:"active"`
}

// SessionFilter narrows admin session listings.
type SessionFilter struct {
	PrincipalID *uuid.UUID
	ActiveOnly  bool
	Limit       int
	Offset      int
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Principal is an account that can hold sessions. Rows live in principals.
type Principal struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Privileged   bool      `json:"privileged"`
	Locked       bool      `json:"locked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName is the name denormalized into enforcement events.
func (p *Principal) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	return p.Email
}

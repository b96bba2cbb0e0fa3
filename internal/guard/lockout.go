package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/repository"
)

const (
	MaxAttempts   = 5
	LockoutWindow = 15 * time.Minute
)

// Lockout blocks logins for a username after repeated failures, backed by login_attempts.
type Lockout struct {
	db     repository.DBTX
	logger *slog.Logger
	now    func() time.Time
}

func NewLockout(db repository.DBTX, logger *slog.Logger) *Lockout {
	return &Lockout{db: db, logger: logger, now: time.Now}
}

// RecordAttempt inserts a login attempt row. Failures are logged only.
func (l *Lockout) RecordAttempt(ctx context.Context, username, ip string, success bool) {
	_, err := l.db.Exec(ctx, `
		INSERT INTO login_attempts (username, ip_address, success)
		VALUES ($1, $2, $3)`,
		username, ip, success)
	if err != nil {
		l.logger.Warn("record login attempt failed", "username", username, "error", err)
	}
}

// CheckLocked returns ErrAccountLocked if the username has >= MaxAttempts
// failed logins within the lockout window.
func (l *Lockout) CheckLocked(ctx context.Context, username string) error {
	var count int
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE username = $1 AND success = false
		  AND created_at > $2`,
		username, l.now().Add(-LockoutWindow)).Scan(&count)
	if err != nil {
		// fail open: an unreachable attempts table must not block every login
		l.logger.Warn("lockout check failed", "username", username, "error", err)
		return nil
	}
	if count >= MaxAttempts {
		return domain.ErrAccountLocked("too many failed login attempts, try again later")
	}
	return nil
}

package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.RiskMaxSessions)
	assert.Equal(t, 70.0, cfg.RiskDisplayThreshold)
	assert.Equal(t, 24*time.Hour, cfg.JWTSessionExpiry)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, "riskguard", cfg.KafkaTopicPrefix)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, 2*time.Second, cfg.OutboxPollInterval)

	r := cfg.Risk()
	assert.Equal(t, 2, r.MaxAllowedSessions)
	assert.Equal(t, 70.0, r.DisplayThresholdPercent)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("RISK_MAX_SESSIONS", "5")
	t.Setenv("RISK_DISPLAY_THRESHOLD", "42.5")
	t.Setenv("LOGIN_RATE_WINDOW", "30s")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.RiskMaxSessions)
	assert.Equal(t, 42.5, cfg.RiskDisplayThreshold)
	assert.Equal(t, 30*time.Second, cfg.LoginRateWindow)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DSN())
}

func TestLoadConfig_BadValue(t *testing.T) {
	t.Setenv("RISK_MAX_SESSIONS", "lots")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfig_DSNFromParts(t *testing.T) {
	cfg := &Config{PGUser: "u", PGPassword: "p", PGHost: "h", PGPort: 5433, PGDatabase: "d", PGSSLMode: "require"}
	assert.Equal(t, "postgres://u:p@h:5433/d?sslmode=require", cfg.DSN())
}

func TestConfig_Validate(t *testing.T) {
	strong := "0123456789abcdef0123456789abcdef"

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"valid", Config{JWTSecret: strong, RiskMaxSessions: 2, RiskDisplayThreshold: 70, OutboxBatchSize: 10}, ""},
		{"default secret", Config{JWTSecret: "change-me-in-production", RiskMaxSessions: 2, OutboxBatchSize: 10}, "insecure default"},
		{"short secret", Config{JWTSecret: "short", RiskMaxSessions: 2, OutboxBatchSize: 10}, "too short"},
		{"insecure allowed", Config{JWTSecret: "x", AllowInsecureDefaults: true, OutboxBatchSize: 10}, ""},
		{"negative cap", Config{JWTSecret: strong, RiskMaxSessions: -1, OutboxBatchSize: 10}, "risk config"},
		{"negative cap even in dev", Config{AllowInsecureDefaults: true, RiskMaxSessions: -1, OutboxBatchSize: 10}, "risk config"},
		{"threshold above 100", Config{JWTSecret: strong, RiskMaxSessions: 2, RiskDisplayThreshold: 120, OutboxBatchSize: 10}, "0..100"},
		{"zero batch", Config{JWTSecret: strong, RiskMaxSessions: 2}, "OUTBOX_BATCH_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_CORSOrigins(t *testing.T) {
	cfg := &Config{CORSAllowedOrigins: " https://a.example , ,https://b.example"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

package risk

import "fmt"

const (
	DefaultMaxAllowedSessions      = 2
	DefaultDisplayThresholdPercent = 70.0
)

// Config is fixed for the life of an Evaluator.
type Config struct {
	// MaxAllowedSessions is the enforcement cap. 0 allows no concurrent session.
	MaxAllowedSessions int
	// DisplayThresholdPercent only labels evaluations; it never triggers
	// enforcement. Valid range is 0..100.
	DisplayThresholdPercent float64
}

func DefaultConfig() Config {
	return Config{
		MaxAllowedSessions:      DefaultMaxAllowedSessions,
		DisplayThresholdPercent: DefaultDisplayThresholdPercent,
	}
}

func (c Config) Validate() error {
	if c.MaxAllowedSessions < 0 {
		return fmt.Errorf("max allowed sessions must be >= 0, got %d", c.MaxAllowedSessions)
	}
	if c.DisplayThresholdPercent < 0 || c.DisplayThresholdPercent > 100 {
		return fmt.Errorf("display threshold must be within 0..100, got %.2f", c.DisplayThresholdPercent)
	}
	return nil
}

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/riskguard/platform/internal/infra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	down := flag.Bool("down", false, "roll migrations back instead of applying them")
	steps := flag.Int("steps", 1, "migrations to roll back with -down; 0 reverts all")
	flag.Parse()

	if err := run(logger, *down, *steps); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, down bool, steps int) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if down {
		return infra.RollbackMigrations(cfg.DSN(), steps, logger)
	}
	return infra.RunMigrations(cfg.DSN(), logger)
}

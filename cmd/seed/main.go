// Command seed upserts principals from a YAML file so a first operator exists.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/riskguard/platform/internal/domain"
	"github.com/riskguard/platform/internal/infra"
	"github.com/riskguard/platform/internal/repository"
	"github.com/riskguard/platform/internal/service"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document read by -file.
type SeedFile struct {
	Principals []SeedPrincipal `yaml:"principals"`
}

type SeedPrincipal struct {
	Username   string `yaml:"username"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
	Privileged bool   `yaml:"privileged"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	file := flag.String("file", "seed.yaml", "seed file")
	flag.Parse()

	if err := run(logger, *file); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, path string) error {
	ctx := context.Background()

	seed, err := loadSeed(path)
	if err != nil {
		return err
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	accounts := service.NewPgAccounts(pool, repository.NewPgPrincipalRepository(), repository.NewOutboxRepository())
	for _, sp := range seed.Principals {
		p, err := sp.principal()
		if err != nil {
			return fmt.Errorf("seed %q: %w", sp.Username, err)
		}
		saved, err := accounts.Upsert(ctx, p)
		if err != nil {
			return fmt.Errorf("seed %q: %w", sp.Username, err)
		}
		logger.Info("principal seeded", "principal_id", saved.ID, "username", saved.Username, "privileged", saved.Privileged)
	}
	return nil
}

func loadSeed(path string) (*SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(seed.Principals) == 0 {
		return nil, fmt.Errorf("seed file %s lists no principals", path)
	}
	return &seed, nil
}

func (sp SeedPrincipal) principal() (*domain.Principal, error) {
	if err := domain.ValidateUsername(sp.Username); err != nil {
		return nil, err
	}
	if err := domain.ValidateEmail(sp.Email); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(sp.Password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(sp.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &domain.Principal{
		ID:           uuid.New(),
		Username:     sp.Username,
		Email:        sp.Email,
		PasswordHash: string(hash),
		Privileged:   sp.Privileged,
	}, nil
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/engine"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/sol"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/store"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// EventSource pages the audit log. The store satisfies this.
type EventSource interface {
	Events(ctx context.Context, q store.EventQuery) ([]store.EventRecord, error)
}

// Pinger reports whether the durable ledger is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyChecker gates readiness on a background component having completed
// its first pass.
type ReadyChecker interface {
	Ready() bool
}

type Config struct {
	Logger            *slog.Logger
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	Engine *engine.Engine
	Events EventSource
	Pinger Pinger

	// Ready is the reconciler; nil skips the check in /readyz.
	Ready ReadyChecker

	// Vaults are reported in the pool view so operators can cross-check
	// addresses against explorers.
	Vaults sol.VaultSet

	AllowedOrigins []string

	// MutationRate and MutationBurst bound per-IP throughput on the
	// mutation routes. Reads are not limited.
	MutationRate  rate.Limit
	MutationBurst int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.Events == nil {
		return errors.New("event source is required")
	}
	if cfg.Pinger == nil {
		return errors.New("pinger is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.MutationRate == 0 {
		// 60 mutations per minute per IP.
		cfg.MutationRate = rate.Every(time.Second)
	}
	if cfg.MutationBurst <= 0 {
		cfg.MutationBurst = 10
	}
	return nil
}

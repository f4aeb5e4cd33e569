package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/metrics"
)

type SweeperConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Engine   *Engine
	Interval time.Duration
}

func (cfg *SweeperConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return nil
}

// Sweeper periodically expires lapsed subscriptions so programs stop running
// on credit nobody paid for.
type Sweeper struct {
	log      *slog.Logger
	clock    clockwork.Clock
	engine   *Engine
	interval time.Duration
}

func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Sweeper{
		log:      cfg.Logger,
		clock:    cfg.Clock,
		engine:   cfg.Engine,
		interval: cfg.Interval,
	}, nil
}

// Run sweeps once at startup to catch up after downtime, then on the
// configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("sweeper: starting", "interval", s.interval)

	s.safeSweep(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper: stopping")
			return nil
		case <-ticker.Chan():
			s.safeSweep(ctx)
		}
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweeper: panic during sweep", "panic", r)
		}
	}()

	expired, err := s.engine.Sweep(ctx)
	metrics.RecordSweep(expired, err)
	if err != nil {
		s.log.Error("sweeper: sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.log.Info("sweeper: subscriptions expired", "count", expired)
	}
}

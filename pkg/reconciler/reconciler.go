// Package reconciler continuously compares the ledger's tracked vault
// balances against the vault accounts on chain. Drift means lamports moved
// outside the engine (or an instruction was recorded that never landed on
// chain); the reconciler publishes it as a gauge and alerts when it appears
// or changes, leaving the correction to the admin's sync instruction.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/metrics"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/notify"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/sol"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/treasury"
)

// PoolView reads the current pool record. The engine satisfies this.
type PoolView interface {
	Pool() *treasury.Pool
}

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Balances sol.BalanceReader
	Vaults   sol.VaultSet
	Pool     PoolView
	Notifier notify.Notifier
	Interval time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Balances == nil {
		return errors.New("balance reader is required")
	}
	if cfg.Vaults == (sol.VaultSet{}) {
		return errors.New("vault set is required")
	}
	if cfg.Pool == nil {
		return errors.New("pool view is required")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	return nil
}

type Reconciler struct {
	log       *slog.Logger
	cfg       Config
	refreshMu sync.Mutex

	mu     sync.RWMutex
	drifts map[string]int64

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reconciler{
		log:     cfg.Logger,
		cfg:     cfg,
		drifts:  make(map[string]int64),
		readyCh: make(chan struct{}),
	}, nil
}

// Ready reports whether at least one reconciliation pass has completed.
func (r *Reconciler) Ready() bool {
	select {
	case <-r.readyCh:
		return true
	default:
		return false
	}
}

func (r *Reconciler) WaitReady(ctx context.Context) error {
	select {
	case <-r.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for reconciler: %w", ctx.Err())
	}
}

// Drifts returns the most recently observed drift per vault, in lamports.
// Positive means the chain holds more than the ledger tracks.
func (r *Reconciler) Drifts() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.drifts))
	for vault, drift := range r.drifts {
		out[vault] = drift
	}
	return out
}

func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		r.log.Info("reconciler: starting scan loop", "interval", r.cfg.Interval)

		r.safeRefresh(ctx)

		ticker := r.cfg.Clock.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				r.safeRefresh(ctx)
			}
		}
	}()
}

func (r *Reconciler) safeRefresh(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("reconciler: scan panicked", "panic", rec)
		}
	}()

	if err := r.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.log.Error("reconciler: scan failed", "error", err)
	}
}

// Refresh runs one reconciliation pass over the three vaults. Tracked
// balances exclude the rent-exempt reserve, so the same reserve is deducted
// from the on-chain reading before comparing.
func (r *Reconciler) Refresh(ctx context.Context) (err error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	start := time.Now()
	defer func() { metrics.RecordReconcile(time.Since(start), err) }()

	pool := r.cfg.Pool.Pool()
	if pool == nil {
		r.log.Debug("reconciler: ledger uninitialized, nothing to reconcile")
		r.markReady()
		return nil
	}

	rentExempt, err := r.cfg.Balances.RentExemptMinimum(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to fetch rent exempt minimum: %w", err)
	}

	checks := []struct {
		name    string
		account solana.PublicKey
		tracked uint64
	}{
		{"treasury", r.cfg.Vaults.Treasury, pool.LiquidBalance},
		{"reward", r.cfg.Vaults.Reward, pool.RewardPoolBalance},
		{"platform", r.cfg.Vaults.Platform, pool.PlatformPoolBalance},
	}
	for _, c := range checks {
		onChain, berr := r.cfg.Balances.Balance(ctx, c.account)
		if berr != nil {
			err = fmt.Errorf("failed to read %s vault balance: %w", c.name, berr)
			return err
		}
		var usable uint64
		if onChain > rentExempt {
			usable = onChain - rentExempt
		}
		drift := int64(usable) - int64(c.tracked)
		metrics.SetVaultDrift(c.name, drift)
		r.recordDrift(ctx, c.name, drift, usable, c.tracked)
	}

	r.markReady()
	return nil
}

// recordDrift remembers the drift and alerts when it first appears or moves
// to a new value. A steady drift alerts once, not once per scan.
func (r *Reconciler) recordDrift(ctx context.Context, vault string, drift int64, onChain, tracked uint64) {
	r.mu.Lock()
	prev, seen := r.drifts[vault]
	r.drifts[vault] = drift
	r.mu.Unlock()

	if drift == 0 {
		if seen && prev != 0 {
			r.log.Info("reconciler: vault drift cleared", "vault", vault)
		}
		return
	}

	r.log.Warn("reconciler: vault drift detected",
		"vault", vault, "drift", drift, "on_chain", onChain, "tracked", tracked)
	if seen && prev == drift {
		return
	}
	// The notifier logs its own failures.
	_ = r.cfg.Notifier.VaultDrift(ctx, vault, onChain, tracked)
}

func (r *Reconciler) markReady() {
	r.readyOnce.Do(func() {
		close(r.readyCh)
		r.log.Info("reconciler: first scan complete")
	})
}

// Package engine serializes ledger instructions. Every instruction runs
// under one write lock: the operation builds a mutation from current state,
// the engine stamps its events with the next sequence numbers, the store
// commits everything in one transaction, and only then does the mutation
// become visible to readers. A failed commit leaves memory exactly as it
// was, so the durable ledger and the in-memory ledger can never diverge.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/metrics"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/notify"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/sol"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/treasury"
)

// ErrNoBalanceReader is returned by chain-reading instructions when the
// engine was built without an RPC endpoint.
var ErrNoBalanceReader = errors.New("no balance reader configured")

// MutationStore persists a mutation's records and events atomically.
type MutationStore interface {
	CommitMutation(ctx context.Context, m *treasury.Mutation) error
}

type Config struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Store    MutationStore
	Notifier notify.Notifier

	// State is the ledger loaded from the store, LastSeq the sequence
	// number of its newest committed event.
	State   *treasury.State
	LastSeq uint64

	// Balances and Vaults feed the liquid-balance sync instruction. A nil
	// Balances disables chain reads.
	Balances sol.BalanceReader
	Vaults   sol.VaultSet
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.State == nil {
		return errors.New("state is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	return nil
}

type Engine struct {
	log      *slog.Logger
	clock    clockwork.Clock
	store    MutationStore
	notifier notify.Notifier
	balances sol.BalanceReader
	vaults   sol.VaultSet

	mu      sync.RWMutex
	state   *treasury.State
	nextSeq uint64
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	e := &Engine{
		log:      cfg.Logger,
		clock:    cfg.Clock,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		balances: cfg.Balances,
		vaults:   cfg.Vaults,
		state:    cfg.State,
		nextSeq:  cfg.LastSeq,
	}
	e.publishGauges()
	e.log.Info("engine: ready",
		"initialized", e.state.Pool != nil,
		"deposits", len(e.state.Deposits),
		"requests", len(e.state.Requests),
		"last_seq", e.nextSeq)
	return e, nil
}

// commit runs one instruction end to end. A nil mutation with a nil error
// means the instruction had nothing to do.
func (e *Engine) commit(ctx context.Context, instruction string, op func(now time.Time) (*treasury.Mutation, error)) (*treasury.Mutation, error) {
	start := e.clock.Now()
	m, err := e.apply(ctx, start.UTC(), op)
	metrics.RecordInstruction(instruction, e.clock.Since(start), err)
	if err != nil {
		e.log.Warn("engine: instruction rejected", "instruction", instruction, "error", err)
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	e.log.Info("engine: instruction committed",
		"instruction", instruction,
		"events", len(m.Events),
		"seq", m.Events[len(m.Events)-1].Seq)
	e.notifyCommitted(m)
	return m, nil
}

func (e *Engine) apply(ctx context.Context, now time.Time, op func(time.Time) (*treasury.Mutation, error)) (*treasury.Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := op(now)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	for i := range m.Events {
		m.Events[i].Seq = e.nextSeq + uint64(i) + 1
		m.Events[i].ID = uuid.New()
	}
	if err := e.store.CommitMutation(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to commit mutation: %w", err)
	}
	e.state.Apply(m)
	e.nextSeq += uint64(len(m.Events))
	e.publishGauges()
	return m, nil
}

func (e *Engine) publishGauges() {
	metrics.EventSequence.Set(float64(e.nextSeq))
	if e.state.Pool == nil {
		return
	}
	p := e.state.Pool
	metrics.SetPoolBalances(p.TotalDeposited, p.LiquidBalance, p.BorrowedAmount,
		p.RewardPoolBalance, p.PlatformPoolBalance)
	metrics.SetEmergencyPause(p.EmergencyPause)
}

// notifyCommitted posts alerts for committed events that warrant one. The
// notifier logs its own failures; an undelivered alert never unwinds a
// committed instruction.
func (e *Engine) notifyCommitted(m *treasury.Mutation) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, ev := range m.Events {
		switch p := ev.Payload.(type) {
		case treasury.DeploymentFailedPayload:
			_ = e.notifier.DeploymentFailed(ctx, p.ProgramHash.String(), p.Developer.String(), p.Reason, p.Refund)
		case treasury.AdminWithdrawPayload:
			if p.BreakGlass {
				_ = e.notifier.BreakGlassWithdraw(ctx, p.Amount, p.Reason, p.Destination.String())
			}
		}
	}
}

func (e *Engine) Initialize(ctx context.Context, admin, devWallet solana.PublicKey, initialAPYBPS uint64) (*treasury.Mutation, error) {
	return e.commit(ctx, "initialize", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.Initialize(now, admin, devWallet, initialAPYBPS)
	})
}

func (e *Engine) StakeSOL(ctx context.Context, backer solana.PublicKey, amount uint64, lockPeriod int64) (*treasury.Mutation, error) {
	return e.commit(ctx, "stake_sol", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.StakeSOL(now, backer, amount, lockPeriod)
	})
}

func (e *Engine) UnstakeSOL(ctx context.Context, backer solana.PublicKey, amount uint64) (*treasury.Mutation, error) {
	return e.commit(ctx, "unstake_sol", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.UnstakeSOL(now, backer, amount)
	})
}

func (e *Engine) ClaimRewards(ctx context.Context, backer solana.PublicKey) (*treasury.Mutation, error) {
	return e.commit(ctx, "claim_rewards", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.ClaimRewards(now, backer)
	})
}

func (e *Engine) CreditFeeToPool(ctx context.Context, admin solana.PublicKey, feeReward, feePlatform uint64) (*treasury.Mutation, error) {
	return e.commit(ctx, "credit_fee_to_pool", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.CreditFeeToPool(now, admin, feeReward, feePlatform)
	})
}

func (e *Engine) CreateDeployRequest(ctx context.Context, admin, developer solana.PublicKey, hash treasury.ProgramHash, serviceFee, monthlyFee uint64, initialMonths uint32, deploymentCost uint64) (*treasury.Mutation, error) {
	return e.commit(ctx, "create_deploy_request", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.CreateDeployRequest(now, admin, developer, hash, serviceFee, monthlyFee, initialMonths, deploymentCost)
	})
}

func (e *Engine) FundTemporaryWallet(ctx context.Context, admin solana.PublicKey, hash treasury.ProgramHash, ephemeralKey solana.PublicKey, cost uint64, usePlatformPool bool) (*treasury.Mutation, error) {
	return e.commit(ctx, "fund_temporary_wallet", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.FundTemporaryWallet(now, admin, hash, ephemeralKey, cost, usePlatformPool)
	})
}

func (e *Engine) ConfirmDeploymentSuccess(ctx context.Context, admin solana.PublicKey, hash treasury.ProgramHash, deployedProgramID solana.PublicKey, recoveredFunds uint64) (*treasury.Mutation, error) {
	return e.commit(ctx, "confirm_deployment_success", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.ConfirmDeploymentSuccess(now, admin, hash, deployedProgramID, recoveredFunds)
	})
}

func (e *Engine) ConfirmDeploymentFailure(ctx context.Context, admin solana.PublicKey, hash treasury.ProgramHash, reason string) (*treasury.Mutation, error) {
	return e.commit(ctx, "confirm_deployment_failure", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.ConfirmDeploymentFailure(now, admin, hash, reason)
	})
}

func (e *Engine) CancelDeployRequest(ctx context.Context, signer solana.PublicKey, hash treasury.ProgramHash) (*treasury.Mutation, error) {
	return e.commit(ctx, "cancel_deploy_request", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.CancelDeployRequest(now, signer, hash)
	})
}

func (e *Engine) PaySubscription(ctx context.Context, developer solana.PublicKey, hash treasury.ProgramHash, months uint32) (*treasury.Mutation, error) {
	return e.commit(ctx, "pay_subscription", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.PaySubscription(now, developer, hash, months)
	})
}

func (e *Engine) SuspendExpiredPrograms(ctx context.Context, admin solana.PublicKey, hashes []treasury.ProgramHash) (*treasury.Mutation, error) {
	return e.commit(ctx, "suspend_expired_programs", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.SuspendExpiredPrograms(now, admin, hashes)
	})
}

func (e *Engine) CloseProgramAndRefund(ctx context.Context, admin solana.PublicKey, hash treasury.ProgramHash, recoveredLamports uint64) (*treasury.Mutation, error) {
	return e.commit(ctx, "close_program_and_refund", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.CloseProgramAndRefund(now, admin, hash, recoveredLamports)
	})
}

func (e *Engine) EmergencyPause(ctx context.Context, admin solana.PublicKey, paused bool) (*treasury.Mutation, error) {
	return e.commit(ctx, "emergency_pause", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.EmergencyPause(now, admin, paused)
	})
}

func (e *Engine) UpdateAPY(ctx context.Context, admin solana.PublicKey, bps uint64) (*treasury.Mutation, error) {
	return e.commit(ctx, "update_apy", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.UpdateAPY(now, admin, bps)
	})
}

func (e *Engine) WithdrawPlatform(ctx context.Context, admin solana.PublicKey, amount uint64, reason string, destination solana.PublicKey) (*treasury.Mutation, error) {
	return e.commit(ctx, "withdraw_platform", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.WithdrawPlatform(now, admin, amount, reason, destination)
	})
}

func (e *Engine) WithdrawRewardPool(ctx context.Context, admin solana.PublicKey, amount uint64, reason string, destination solana.PublicKey) (*treasury.Mutation, error) {
	return e.commit(ctx, "withdraw_reward_pool", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.WithdrawRewardPool(now, admin, amount, reason, destination)
	})
}

// SyncLiquidBalance reads the principal vault on chain and snaps the tracked
// liquid balance to it, net of rent. The RPC reads happen before the ledger
// lock is taken so a slow endpoint cannot stall other instructions.
func (e *Engine) SyncLiquidBalance(ctx context.Context, admin solana.PublicKey) (*treasury.Mutation, error) {
	if e.balances == nil {
		return nil, ErrNoBalanceReader
	}
	onChain, err := e.balances.Balance(ctx, e.vaults.Treasury)
	if err != nil {
		return nil, fmt.Errorf("failed to read treasury vault balance: %w", err)
	}
	rentExempt, err := e.balances.RentExemptMinimum(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read rent exempt minimum: %w", err)
	}
	return e.commit(ctx, "sync_liquid_balance", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.SyncLiquidBalance(now, admin, onChain, rentExempt)
	})
}

// Sweep expires every active request whose paid subscription window has
// lapsed and reports how many it moved.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	m, err := e.commit(ctx, "sweep_expired_subscriptions", func(now time.Time) (*treasury.Mutation, error) {
		return e.state.SweepExpiredSubscriptions(now)
	})
	if err != nil || m == nil {
		return 0, err
	}
	return len(m.Requests), nil
}

// Pool returns a copy of the pool record, or nil before initialization.
func (e *Engine) Pool() *treasury.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state.Pool == nil {
		return nil
	}
	return e.state.Pool.Clone()
}

func (e *Engine) Deposit(backer solana.PublicKey) (*treasury.Deposit, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.DepositOf(backer)
}

func (e *Engine) Claimable(backer solana.PublicKey) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.ClaimableOf(backer)
}

func (e *Engine) Request(hash treasury.ProgramHash) (*treasury.DeployRequest, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.RequestOf(hash)
}

func (e *Engine) Stats(developer solana.PublicKey) (*treasury.DeveloperStats, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.StatsOf(developer)
}

// LastSeq is the sequence number of the most recently committed event.
func (e *Engine) LastSeq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nextSeq
}

// PoolTotals are the derived figures reported alongside raw pool balances.
type PoolTotals struct {
	TotalClaimable     uint64
	PendingCredits     uint64
	WithdrawableExcess uint64
}

func (e *Engine) Totals() (PoolTotals, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	claimable, err := e.state.TotalClaimable()
	if err != nil {
		return PoolTotals{}, err
	}
	credits, err := e.state.PendingDeployCredits()
	if err != nil {
		return PoolTotals{}, err
	}
	excess, err := e.state.WithdrawableRewardExcess()
	if err != nil {
		return PoolTotals{}, err
	}
	return PoolTotals{
		TotalClaimable:     claimable,
		PendingCredits:     credits,
		WithdrawableExcess: excess,
	}, nil
}

// RequestFilter selects deploy requests for listing. Zero values match
// everything; a non-positive Limit falls back to 50.
type RequestFilter struct {
	Status    treasury.DeployStatus
	Developer solana.PublicKey
	Limit     int
	Offset    int
}

// Requests lists deploy requests newest first, ties broken by program hash.
func (e *Engine) Requests(f RequestFilter) []*treasury.DeployRequest {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}

	e.mu.RLock()
	matched := make([]*treasury.DeployRequest, 0, len(e.state.Requests))
	for _, r := range e.state.Requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.Developer.IsZero() && r.Developer != f.Developer {
			continue
		}
		matched = append(matched, r.Clone())
	}
	e.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ProgramHash.String() < matched[j].ProgramHash.String()
	})

	if f.Offset >= len(matched) {
		return nil
	}
	matched = matched[f.Offset:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched
}

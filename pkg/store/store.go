// Package store persists the treasury ledger in PostgreSQL: the singleton
// pool row, per-backer deposits, deploy requests, developer stats, and the
// append-only event log. A mutation's rows and events commit in a single
// transaction so the durable ledger can never hold half an instruction.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/treasury"
)

type Config struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log:  cfg.Logger,
		pool: cfg.Pool,
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load reads the entire ledger into memory along with the sequence number of
// the last committed event. The working set is one pool row plus a row per
// backer and deploy request, so a full load at startup is cheap.
func (s *Store) Load(ctx context.Context) (*treasury.State, uint64, error) {
	state := treasury.NewState()

	pool, err := s.loadPool(ctx)
	if err != nil {
		return nil, 0, err
	}
	state.Pool = pool

	if err := s.loadDeposits(ctx, state); err != nil {
		return nil, 0, err
	}
	if err := s.loadRequests(ctx, state); err != nil {
		return nil, 0, err
	}
	if err := s.loadStats(ctx, state); err != nil {
		return nil, 0, err
	}

	var lastSeq int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM treasury_events`,
	).Scan(&lastSeq); err != nil {
		return nil, 0, fmt.Errorf("failed to load last event seq: %w", err)
	}

	s.log.Info("store: ledger loaded",
		"initialized", state.Pool != nil,
		"deposits", len(state.Deposits),
		"requests", len(state.Requests),
		"last_seq", lastSeq)

	return state, uint64(lastSeq), nil
}

// CommitMutation writes the mutation's replacement rows and its events in one
// transaction. The caller must have assigned Seq and ID to every event.
func (s *Store) CommitMutation(ctx context.Context, m *treasury.Mutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if m.Pool != nil {
		if err := upsertPool(ctx, tx, m.Pool); err != nil {
			return err
		}
	}
	for _, d := range m.Deposits {
		if err := upsertDeposit(ctx, tx, d); err != nil {
			return err
		}
	}
	for _, r := range m.Requests {
		if err := upsertRequest(ctx, tx, r); err != nil {
			return err
		}
	}
	for _, st := range m.Stats {
		if err := upsertStats(ctx, tx, st); err != nil {
			return err
		}
	}
	for i := range m.Events {
		if err := insertEvent(ctx, tx, &m.Events[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertPool(ctx context.Context, tx pgx.Tx, p *treasury.Pool) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO treasury_pool (
			id, admin, dev_wallet, reward_per_share,
			total_deposited, liquid_balance, borrowed_amount,
			reward_pool_balance, platform_pool_balance,
			reward_fee_bps, platform_fee_bps, current_apy_bps,
			emergency_pause, created_at, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			admin = EXCLUDED.admin,
			dev_wallet = EXCLUDED.dev_wallet,
			reward_per_share = EXCLUDED.reward_per_share,
			total_deposited = EXCLUDED.total_deposited,
			liquid_balance = EXCLUDED.liquid_balance,
			borrowed_amount = EXCLUDED.borrowed_amount,
			reward_pool_balance = EXCLUDED.reward_pool_balance,
			platform_pool_balance = EXCLUDED.platform_pool_balance,
			reward_fee_bps = EXCLUDED.reward_fee_bps,
			platform_fee_bps = EXCLUDED.platform_fee_bps,
			current_apy_bps = EXCLUDED.current_apy_bps,
			emergency_pause = EXCLUDED.emergency_pause,
			updated_at = EXCLUDED.updated_at`,
		p.Admin.String(), p.DevWallet.String(), numericFromU128(p.RewardPerShare),
		int64(p.TotalDeposited), int64(p.LiquidBalance), int64(p.BorrowedAmount),
		int64(p.RewardPoolBalance), int64(p.PlatformPoolBalance),
		int64(p.RewardFeeBPS), int64(p.PlatformFeeBPS), int64(p.CurrentAPYBPS),
		p.EmergencyPause, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert pool: %w", err)
	}
	return nil
}

func upsertDeposit(ctx context.Context, tx pgx.Tx, d *treasury.Deposit) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO backer_deposits (
			backer, deposited_amount, reward_debt, pending_rewards,
			claimed_total, lock_period, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (backer) DO UPDATE SET
			deposited_amount = EXCLUDED.deposited_amount,
			reward_debt = EXCLUDED.reward_debt,
			pending_rewards = EXCLUDED.pending_rewards,
			claimed_total = EXCLUDED.claimed_total,
			lock_period = EXCLUDED.lock_period,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		d.Backer.String(), int64(d.DepositedAmount), numericFromU128(d.RewardDebt),
		int64(d.PendingRewards), int64(d.ClaimedTotal), d.LockPeriod,
		d.IsActive, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deposit for %s: %w", d.Backer, err)
	}
	return nil
}

func upsertRequest(ctx context.Context, tx pgx.Tx, r *treasury.DeployRequest) error {
	var ephemeralKey, deployedProgramID *string
	if r.EphemeralKey != nil {
		s := r.EphemeralKey.String()
		ephemeralKey = &s
	}
	if r.DeployedProgramID != nil {
		s := r.DeployedProgramID.String()
		deployedProgramID = &s
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO deploy_requests (
			program_hash, developer, service_fee, monthly_fee, initial_months,
			deployment_cost, borrowed_amount, funded_from, ephemeral_key,
			deployed_program_id, subscription_paid_until, status, fail_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (program_hash) DO UPDATE SET
			developer = EXCLUDED.developer,
			service_fee = EXCLUDED.service_fee,
			monthly_fee = EXCLUDED.monthly_fee,
			initial_months = EXCLUDED.initial_months,
			deployment_cost = EXCLUDED.deployment_cost,
			borrowed_amount = EXCLUDED.borrowed_amount,
			funded_from = EXCLUDED.funded_from,
			ephemeral_key = EXCLUDED.ephemeral_key,
			deployed_program_id = EXCLUDED.deployed_program_id,
			subscription_paid_until = EXCLUDED.subscription_paid_until,
			status = EXCLUDED.status,
			fail_reason = EXCLUDED.fail_reason,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		r.ProgramHash.String(), r.Developer.String(),
		int64(r.ServiceFee), int64(r.MonthlyFee), int32(r.InitialMonths),
		int64(r.DeploymentCost), int64(r.BorrowedAmount), string(r.FundedFrom),
		ephemeralKey, deployedProgramID, r.SubscriptionPaidUntil,
		string(r.Status), r.FailReason, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deploy request %s: %w", r.ProgramHash, err)
	}
	return nil
}

func upsertStats(ctx context.Context, tx pgx.Tx, st *treasury.DeveloperStats) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO developer_stats (
			developer, active_sessions, daily_deploys, total_deploys,
			last_reset, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (developer) DO UPDATE SET
			active_sessions = EXCLUDED.active_sessions,
			daily_deploys = EXCLUDED.daily_deploys,
			total_deploys = EXCLUDED.total_deploys,
			last_reset = EXCLUDED.last_reset,
			updated_at = EXCLUDED.updated_at`,
		st.Developer.String(), int32(st.ActiveSessions), int32(st.DailyDeploys),
		int64(st.TotalDeploys), st.LastReset, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert developer stats for %s: %w", st.Developer, err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev *treasury.Event) error {
	if ev.Seq == 0 {
		return fmt.Errorf("event %s has no sequence number", ev.Type)
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", ev.Type, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO treasury_events (seq, id, type, at, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		int64(ev.Seq), ev.ID, string(ev.Type), ev.At, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %d (%s): %w", ev.Seq, ev.Type, err)
	}
	return nil
}

func (s *Store) loadPool(ctx context.Context) (*treasury.Pool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT admin, dev_wallet, reward_per_share,
			total_deposited, liquid_balance, borrowed_amount,
			reward_pool_balance, platform_pool_balance,
			reward_fee_bps, platform_fee_bps, current_apy_bps,
			emergency_pause, created_at, updated_at
		FROM treasury_pool WHERE id = 1`)

	var p treasury.Pool
	var admin, devWallet string
	var rewardPerShare numericScanner
	var totalDeposited, liquid, borrowed, rewardPool, platformPool int64
	var rewardBPS, platformBPS, apyBPS int64
	err := row.Scan(&admin, &devWallet, &rewardPerShare,
		&totalDeposited, &liquid, &borrowed,
		&rewardPool, &platformPool,
		&rewardBPS, &platformBPS, &apyBPS,
		&p.EmergencyPause, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pool: %w", err)
	}

	if p.Admin, err = solana.PublicKeyFromBase58(admin); err != nil {
		return nil, fmt.Errorf("failed to parse pool admin: %w", err)
	}
	if p.DevWallet, err = solana.PublicKeyFromBase58(devWallet); err != nil {
		return nil, fmt.Errorf("failed to parse pool dev wallet: %w", err)
	}
	if p.RewardPerShare, err = rewardPerShare.Uint128(); err != nil {
		return nil, fmt.Errorf("failed to parse reward_per_share: %w", err)
	}
	p.TotalDeposited = uint64(totalDeposited)
	p.LiquidBalance = uint64(liquid)
	p.BorrowedAmount = uint64(borrowed)
	p.RewardPoolBalance = uint64(rewardPool)
	p.PlatformPoolBalance = uint64(platformPool)
	p.RewardFeeBPS = uint64(rewardBPS)
	p.PlatformFeeBPS = uint64(platformBPS)
	p.CurrentAPYBPS = uint64(apyBPS)
	return &p, nil
}

func (s *Store) loadDeposits(ctx context.Context, state *treasury.State) error {
	rows, err := s.pool.Query(ctx, `
		SELECT backer, deposited_amount, reward_debt, pending_rewards,
			claimed_total, lock_period, is_active, created_at, updated_at
		FROM backer_deposits`)
	if err != nil {
		return fmt.Errorf("failed to load deposits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d treasury.Deposit
		var backer string
		var rewardDebt numericScanner
		var deposited, pending, claimed int64
		if err := rows.Scan(&backer, &deposited, &rewardDebt, &pending,
			&claimed, &d.LockPeriod, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan deposit: %w", err)
		}
		if d.Backer, err = solana.PublicKeyFromBase58(backer); err != nil {
			return fmt.Errorf("failed to parse deposit backer %q: %w", backer, err)
		}
		if d.RewardDebt, err = rewardDebt.Uint128(); err != nil {
			return fmt.Errorf("failed to parse reward_debt for %s: %w", backer, err)
		}
		d.DepositedAmount = uint64(deposited)
		d.PendingRewards = uint64(pending)
		d.ClaimedTotal = uint64(claimed)
		state.Deposits[d.Backer] = &d
	}
	return rows.Err()
}

func (s *Store) loadRequests(ctx context.Context, state *treasury.State) error {
	rows, err := s.pool.Query(ctx, `
		SELECT program_hash, developer, service_fee, monthly_fee, initial_months,
			deployment_cost, borrowed_amount, funded_from, ephemeral_key,
			deployed_program_id, subscription_paid_until, status, fail_reason,
			created_at, updated_at
		FROM deploy_requests`)
	if err != nil {
		return fmt.Errorf("failed to load deploy requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r treasury.DeployRequest
		var hash, developer, status, from string
		var serviceFee, monthlyFee, deploymentCost, borrowed int64
		var initialMonths int32
		var ephemeralKey, deployedID *string
		if err := rows.Scan(&hash, &developer, &serviceFee, &monthlyFee,
			&initialMonths, &deploymentCost, &borrowed, &from, &ephemeralKey,
			&deployedID, &r.SubscriptionPaidUntil, &status, &r.FailReason,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan deploy request: %w", err)
		}
		if r.ProgramHash, err = treasury.ProgramHashFromBase58(hash); err != nil {
			return fmt.Errorf("failed to parse program hash %q: %w", hash, err)
		}
		if r.Developer, err = solana.PublicKeyFromBase58(developer); err != nil {
			return fmt.Errorf("failed to parse developer %q: %w", developer, err)
		}
		if ephemeralKey != nil {
			key, err := solana.PublicKeyFromBase58(*ephemeralKey)
			if err != nil {
				return fmt.Errorf("failed to parse ephemeral key %q: %w", *ephemeralKey, err)
			}
			r.EphemeralKey = &key
		}
		if deployedID != nil {
			key, err := solana.PublicKeyFromBase58(*deployedID)
			if err != nil {
				return fmt.Errorf("failed to parse deployed program id %q: %w", *deployedID, err)
			}
			r.DeployedProgramID = &key
		}
		r.ServiceFee = uint64(serviceFee)
		r.MonthlyFee = uint64(monthlyFee)
		r.InitialMonths = uint32(initialMonths)
		r.DeploymentCost = uint64(deploymentCost)
		r.BorrowedAmount = uint64(borrowed)
		r.FundedFrom = treasury.FundingSource(from)
		r.Status = treasury.DeployStatus(status)
		if !r.Status.Valid() {
			return fmt.Errorf("deploy request %s has unknown status %q", hash, status)
		}
		state.Requests[r.ProgramHash] = &r
	}
	return rows.Err()
}

func (s *Store) loadStats(ctx context.Context, state *treasury.State) error {
	rows, err := s.pool.Query(ctx, `
		SELECT developer, active_sessions, daily_deploys, total_deploys,
			last_reset, updated_at
		FROM developer_stats`)
	if err != nil {
		return fmt.Errorf("failed to load developer stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st treasury.DeveloperStats
		var developer string
		var active, daily int32
		var total int64
		if err := rows.Scan(&developer, &active, &daily, &total,
			&st.LastReset, &st.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan developer stats: %w", err)
		}
		if st.Developer, err = solana.PublicKeyFromBase58(developer); err != nil {
			return fmt.Errorf("failed to parse stats developer %q: %w", developer, err)
		}
		st.ActiveSessions = uint32(active)
		st.DailyDeploys = uint32(daily)
		st.TotalDeploys = uint64(total)
		state.Stats[st.Developer] = &st
	}
	return rows.Err()
}

// EventRecord is one audit row as stored: the payload stays raw JSON since
// readers only forward it.
type EventRecord struct {
	Seq     uint64             `json:"seq"`
	ID      uuid.UUID          `json:"id"`
	Type    treasury.EventType `json:"type"`
	At      time.Time          `json:"at"`
	Payload json.RawMessage    `json:"payload"`
}

// EventQuery selects a page of the audit log, newest first. Before is an
// exclusive upper bound on seq; zero means start from the newest event.
type EventQuery struct {
	Type   treasury.EventType
	Before uint64
	Limit  int
}

// Events returns audit records in descending seq order.
func (s *Store) Events(ctx context.Context, q EventQuery) ([]EventRecord, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT seq, id, type, at, payload FROM treasury_events
		WHERE ($1 = '' OR type = $1)
		  AND ($2 = 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3`,
		string(q.Type), int64(q.Before), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	records := make([]EventRecord, 0, q.Limit)
	for rows.Next() {
		var rec EventRecord
		var seq int64
		var typ string
		if err := rows.Scan(&seq, &rec.ID, &typ, &rec.At, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Seq = uint64(seq)
		rec.Type = treasury.EventType(typ)
		records = append(records, rec)
	}
	return records, rows.Err()
}

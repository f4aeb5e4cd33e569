package server

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SaitamaCoderVN/d2d-treasury/pkg/engine"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/sol"
	"github.com/SaitamaCoderVN/d2d-treasury/pkg/treasury"
)

// amountView renders one lamport amount with its SOL equivalent.
type amountView struct {
	Lamports uint64 `json:"lamports"`
	SOL      string `json:"sol"`
}

func amount(lamports uint64) amountView {
	return amountView{
		Lamports: lamports,
		SOL:      decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).String(),
	}
}

type vaultsView struct {
	Treasury solana.PublicKey `json:"treasury"`
	Reward   solana.PublicKey `json:"reward"`
	Platform solana.PublicKey `json:"platform"`
}

type totalsView struct {
	TotalClaimable     amountView `json:"total_claimable"`
	PendingCredits     amountView `json:"pending_deploy_credits"`
	WithdrawableExcess amountView `json:"withdrawable_reward_excess"`
}

type poolView struct {
	Admin          solana.PublicKey `json:"admin"`
	DevWallet      solana.PublicKey `json:"dev_wallet"`
	RewardPerShare string           `json:"reward_per_share"`
	TotalDeposited amountView       `json:"total_deposited"`
	LiquidBalance  amountView       `json:"liquid_balance"`
	BorrowedAmount amountView       `json:"borrowed_amount"`
	RewardPool     amountView       `json:"reward_pool"`
	PlatformPool   amountView       `json:"platform_pool"`
	RewardFeeBPS   uint64           `json:"reward_fee_bps"`
	PlatformFeeBPS uint64           `json:"platform_fee_bps"`
	CurrentAPYBPS  uint64           `json:"current_apy_bps"`
	EmergencyPause bool             `json:"emergency_pause"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Totals         totalsView       `json:"totals"`
	Vaults         vaultsView       `json:"vaults"`
	LastSeq        uint64           `json:"last_seq"`
}

func newPoolView(p *treasury.Pool, totals engine.PoolTotals, vaults sol.VaultSet, lastSeq uint64) poolView {
	return poolView{
		Admin:          p.Admin,
		DevWallet:      p.DevWallet,
		RewardPerShare: p.RewardPerShare.BigInt().String(),
		TotalDeposited: amount(p.TotalDeposited),
		LiquidBalance:  amount(p.LiquidBalance),
		BorrowedAmount: amount(p.BorrowedAmount),
		RewardPool:     amount(p.RewardPoolBalance),
		PlatformPool:   amount(p.PlatformPoolBalance),
		RewardFeeBPS:   p.RewardFeeBPS,
		PlatformFeeBPS: p.PlatformFeeBPS,
		CurrentAPYBPS:  p.CurrentAPYBPS,
		EmergencyPause: p.EmergencyPause,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		Totals: totalsView{
			TotalClaimable:     amount(totals.TotalClaimable),
			PendingCredits:     amount(totals.PendingCredits),
			WithdrawableExcess: amount(totals.WithdrawableExcess),
		},
		Vaults: vaultsView{
			Treasury: vaults.Treasury,
			Reward:   vaults.Reward,
			Platform: vaults.Platform,
		},
		LastSeq: lastSeq,
	}
}

type backerView struct {
	Backer         solana.PublicKey `json:"backer"`
	Deposited      amountView       `json:"deposited"`
	PendingRewards amountView       `json:"pending_rewards"`
	Claimable      amountView       `json:"claimable"`
	ClaimedTotal   amountView       `json:"claimed_total"`
	LockPeriod     int64            `json:"lock_period_seconds"`
	IsActive       bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func newBackerView(d *treasury.Deposit, claimable uint64) backerView {
	return backerView{
		Backer:         d.Backer,
		Deposited:      amount(d.DepositedAmount),
		PendingRewards: amount(d.PendingRewards),
		Claimable:      amount(claimable),
		ClaimedTotal:   amount(d.ClaimedTotal),
		LockPeriod:     d.LockPeriod,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type deploymentView struct {
	ProgramHash           treasury.ProgramHash   `json:"program_hash"`
	Developer             solana.PublicKey       `json:"developer"`
	Status                treasury.DeployStatus  `json:"status"`
	ServiceFee            amountView             `json:"service_fee"`
	MonthlyFee            amountView             `json:"monthly_fee"`
	InitialMonths         uint32                 `json:"initial_months"`
	DeploymentCost        amountView             `json:"deployment_cost"`
	BorrowedAmount        amountView             `json:"borrowed_amount"`
	FundedFrom            treasury.FundingSource `json:"funded_from,omitempty"`
	EphemeralKey          *solana.PublicKey      `json:"ephemeral_key,omitempty"`
	DeployedProgramID     *solana.PublicKey      `json:"deployed_program_id,omitempty"`
	SubscriptionPaidUntil time.Time              `json:"subscription_paid_until"`
	FailReason            string                 `json:"fail_reason,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

func newDeploymentView(r *treasury.DeployRequest) deploymentView {
	return deploymentView{
		ProgramHash:           r.ProgramHash,
		Developer:             r.Developer,
		Status:                r.Status,
		ServiceFee:            amount(r.ServiceFee),
		MonthlyFee:            amount(r.MonthlyFee),
		InitialMonths:         r.InitialMonths,
		DeploymentCost:        amount(r.DeploymentCost),
		BorrowedAmount:        amount(r.BorrowedAmount),
		FundedFrom:            r.FundedFrom,
		EphemeralKey:          r.EphemeralKey,
		DeployedProgramID:     r.DeployedProgramID,
		SubscriptionPaidUntil: r.SubscriptionPaidUntil,
		FailReason:            r.FailReason,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

type statsView struct {
	Developer      solana.PublicKey `json:"developer"`
	ActiveSessions uint32           `json:"active_sessions"`
	DailyDeploys   uint32           `json:"daily_deploys"`
	TotalDeploys   uint64           `json:"total_deploys"`
	LastReset      time.Time        `json:"last_reset"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func newStatsView(st *treasury.DeveloperStats) statsView {
	return statsView{
		Developer:      st.Developer,
		ActiveSessions: st.ActiveSessions,
		DailyDeploys:   st.DailyDeploys,
		TotalDeploys:   st.TotalDeploys,
		LastReset:      st.LastReset,
		UpdatedAt:      st.UpdatedAt,
	}
}

// committedEvent echoes an event stamped by a successful mutation. Payloads
// are not repeated here; the events endpoint serves them.
type committedEvent struct {
	Seq  uint64             `json:"seq"`
	ID   uuid.UUID          `json:"id"`
	Type treasury.EventType `json:"type"`
	At   time.Time          `json:"at"`
}

type commitResponse struct {
	Seq    uint64           `json:"seq"`
	Events []committedEvent `json:"events"`
}

func newCommitResponse(m *treasury.Mutation) commitResponse {
	resp := commitResponse{Events: []committedEvent{}}
	if m == nil || len(m.Events) == 0 {
		return resp
	}
	resp.Seq = m.Events[len(m.Events)-1].Seq
	for _, ev := range m.Events {
		resp.Events = append(resp.Events, committedEvent{
			Seq:  ev.Seq,
			ID:   ev.ID,
			Type: ev.Type,
			At:   ev.At,
		})
	}
	return resp
}

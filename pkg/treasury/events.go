package treasury

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// EventType names an audit record. Every balance-changing operation emits
// at least one event in the same atomic mutation as its state change.
type EventType string

const (
	EventTreasuryPoolInitialized EventType = "TreasuryPoolInitialized"
	EventSolStaked               EventType = "SolStaked"
	EventSolUnstaked             EventType = "SolUnstaked"
	EventClaimed                 EventType = "Claimed"
	EventFeeCredited             EventType = "FeeCredited"
	EventDeployRequestCreated    EventType = "DeployRequestCreated"
	EventTemporaryWalletFunded   EventType = "TemporaryWalletFunded"
	EventDeploymentConfirmed     EventType = "DeploymentConfirmed"
	EventDeploymentFailed        EventType = "DeploymentFailed"
	EventDeployRequestCancelled  EventType = "DeployRequestCancelled"
	EventSubscriptionPaid        EventType = "SubscriptionPaid"
	EventSubscriptionExpired     EventType = "SubscriptionExpired"
	EventProgramsSuspended       EventType = "ProgramsSuspended"
	EventProgramClosed           EventType = "ProgramClosed"
	EventEmergencyPauseToggled   EventType = "EmergencyPauseToggled"
	EventApyUpdated              EventType = "ApyUpdated"
	EventAdminWithdraw           EventType = "AdminWithdraw"
	EventLiquidBalanceSynced     EventType = "LiquidBalanceSynced"
)

// Event is one append-only audit record. Operations fill Type, At, and
// Payload; the engine assigns Seq and ID when it commits the mutation.
type Event struct {
	Seq     uint64
	ID      uuid.UUID
	Type    EventType
	At      time.Time
	Payload any
}

func newEvent(t EventType, at time.Time, payload any) Event {
	return Event{Type: t, At: at, Payload: payload}
}

type TreasuryPoolInitializedPayload struct {
	Admin         solana.PublicKey `json:"admin"`
	DevWallet     solana.PublicKey `json:"dev_wallet"`
	InitialAPYBPS uint64           `json:"initial_apy_bps"`
}

type SolStakedPayload struct {
	Backer         solana.PublicKey `json:"backer"`
	Amount         uint64           `json:"amount"`
	NewDeposit     uint64           `json:"new_deposit"`
	TotalDeposited uint64           `json:"total_deposited"`
}

type SolUnstakedPayload struct {
	Backer           solana.PublicKey `json:"backer"`
	Amount           uint64           `json:"amount"`
	RemainingDeposit uint64           `json:"remaining_deposit"`
	TotalDeposited   uint64           `json:"total_deposited"`
}

type ClaimedPayload struct {
	Backer            solana.PublicKey `json:"backer"`
	Amount            uint64           `json:"amount"`
	ClaimedTotal      uint64           `json:"claimed_total"`
	RewardPoolBalance uint64           `json:"reward_pool_balance"`
}

type FeeCreditedPayload struct {
	FeeReward      uint64 `json:"fee_reward"`
	FeePlatform    uint64 `json:"fee_platform"`
	Distributed    bool   `json:"distributed"`
	RewardPerShare string `json:"reward_per_share"`
}

type DeployRequestCreatedPayload struct {
	ProgramHash           ProgramHash      `json:"program_hash"`
	Developer             solana.PublicKey `json:"developer"`
	ServiceFee            uint64           `json:"service_fee"`
	MonthlyFee            uint64           `json:"monthly_fee"`
	InitialMonths         uint32           `json:"initial_months"`
	DeploymentCost        uint64           `json:"deployment_cost"`
	RewardCredit          uint64           `json:"reward_credit"`
	PlatformFee           uint64           `json:"platform_fee"`
	SubscriptionPaidUntil time.Time        `json:"subscription_paid_until"`
}

type TemporaryWalletFundedPayload struct {
	ProgramHash  ProgramHash      `json:"program_hash"`
	EphemeralKey solana.PublicKey `json:"ephemeral_key"`
	Cost         uint64           `json:"cost"`
	Source       FundingSource    `json:"source"`
}

type DeploymentConfirmedPayload struct {
	ProgramHash        ProgramHash      `json:"program_hash"`
	ProgramID          solana.PublicKey `json:"program_id"`
	Developer          solana.PublicKey `json:"developer"`
	Recovered          uint64           `json:"recovered"`
	Consumed           uint64           `json:"consumed"`
	DistributedRewards uint64           `json:"distributed_rewards"`
	Distributed        bool             `json:"distributed"`
	RewardPerShare     string           `json:"reward_per_share"`
}

type DeploymentFailedPayload struct {
	ProgramHash    ProgramHash      `json:"program_hash"`
	Developer      solana.PublicKey `json:"developer"`
	Reason         string           `json:"reason"`
	Refund         uint64           `json:"refund"`
	ReturnedToPool uint64           `json:"returned_to_pool"`
}

type DeployRequestCancelledPayload struct {
	ProgramHash ProgramHash      `json:"program_hash"`
	Developer   solana.PublicKey `json:"developer"`
	Refund      uint64           `json:"refund"`
}

type SubscriptionPaidPayload struct {
	ProgramHash ProgramHash      `json:"program_hash"`
	Developer   solana.PublicKey `json:"developer"`
	Months      uint32           `json:"months"`
	Amount      uint64           `json:"amount"`
	PaidUntil   time.Time        `json:"paid_until"`
	Distributed bool             `json:"distributed"`
	Reactivated bool             `json:"reactivated"`
}

type SubscriptionExpiredPayload struct {
	ProgramHash ProgramHash `json:"program_hash"`
	PaidUntil   time.Time   `json:"paid_until"`
}

type ProgramsSuspendedPayload struct {
	ProgramHashes []ProgramHash `json:"program_hashes"`
	Count         int           `json:"count"`
}

type ProgramClosedPayload struct {
	ProgramHash ProgramHash       `json:"program_hash"`
	ProgramID   *solana.PublicKey `json:"program_id,omitempty"`
	Developer   solana.PublicKey  `json:"developer"`
	Recovered   uint64            `json:"recovered"`
}

type EmergencyPauseToggledPayload struct {
	Paused bool `json:"paused"`
}

type ApyUpdatedPayload struct {
	OldBPS uint64 `json:"old_bps"`
	NewBPS uint64 `json:"new_bps"`
}

type AdminWithdrawPayload struct {
	Pool             string           `json:"pool"`
	Amount           uint64           `json:"amount"`
	Reason           string           `json:"reason"`
	Destination      solana.PublicKey `json:"destination"`
	BreakGlass       bool             `json:"break_glass"`
	RemainingBalance uint64           `json:"remaining_balance"`
}

type LiquidBalanceSyncedPayload struct {
	OldBalance     uint64 `json:"old_balance"`
	NewBalance     uint64 `json:"new_balance"`
	OnChainBalance uint64 `json:"on_chain_balance"`
	RentExempt     uint64 `json:"rent_exempt"`
}

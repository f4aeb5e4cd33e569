package treasury

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// DeployStatus is the lifecycle state of a deploy request. Stored as text;
// the values match the ledger's status column.
type DeployStatus string

const (
	StatusPendingDeployment   DeployStatus = "PendingDeployment"
	StatusActive              DeployStatus = "Active"
	StatusFailed              DeployStatus = "Failed"
	StatusCancelled           DeployStatus = "Cancelled"
	StatusSubscriptionExpired DeployStatus = "SubscriptionExpired"
	StatusSuspended           DeployStatus = "Suspended"
	StatusClosed              DeployStatus = "Closed"
)

// Terminal statuses accept no further transitions; a new request for the
// same program hash resets the record.
func (s DeployStatus) Terminal() bool {
	switch s {
	case StatusFailed, StatusCancelled, StatusClosed:
		return true
	}
	return false
}

func (s DeployStatus) Valid() bool {
	switch s {
	case StatusPendingDeployment, StatusActive, StatusFailed, StatusCancelled,
		StatusSubscriptionExpired, StatusSuspended, StatusClosed:
		return true
	}
	return false
}

var legalTransitions = map[DeployStatus][]DeployStatus{
	StatusPendingDeployment:   {StatusActive, StatusFailed, StatusCancelled},
	StatusActive:              {StatusSubscriptionExpired, StatusSuspended, StatusClosed},
	StatusSubscriptionExpired: {StatusActive, StatusSuspended},
}

// FundingSource says which vault advanced the deployment cost.
type FundingSource string

const (
	FundedFromTreasury FundingSource = "treasury"
	FundedFromPlatform FundingSource = "platform"
)

// DeployRequest tracks one deployment through funding, confirmation, and
// subscription, keyed by program hash.
type DeployRequest struct {
	Developer   solana.PublicKey
	ProgramHash ProgramHash

	ServiceFee     uint64
	MonthlyFee     uint64
	InitialMonths  uint32
	DeploymentCost uint64

	// BorrowedAmount is what fund_temporary_wallet advanced and has not
	// yet been settled back; FundedFrom records the source vault.
	BorrowedAmount uint64
	FundedFrom     FundingSource

	EphemeralKey      *solana.PublicKey
	DeployedProgramID *solana.PublicKey

	SubscriptionPaidUntil time.Time

	Status     DeployStatus
	FailReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *DeployRequest) Clone() *DeployRequest {
	cp := *r
	if r.EphemeralKey != nil {
		k := *r.EphemeralKey
		cp.EphemeralKey = &k
	}
	if r.DeployedProgramID != nil {
		k := *r.DeployedProgramID
		cp.DeployedProgramID = &k
	}
	return &cp
}

// Funded reports whether deployment funds have been advanced.
func (r *DeployRequest) Funded() bool {
	return r.EphemeralKey != nil
}

// rewardCredit is the developer payment held in the reward pool for this
// request: distributed on success, refunded on failure or cancellation.
func (r *DeployRequest) rewardCredit() (uint64, error) {
	subscription, err := mulU64(r.MonthlyFee, uint64(r.InitialMonths))
	if err != nil {
		return 0, err
	}
	return addU64(r.ServiceFee, subscription)
}

// transition moves the request to the target status if the pair is legal.
func (r *DeployRequest) transition(to DeployStatus) error {
	for _, allowed := range legalTransitions[r.Status] {
		if allowed == to {
			r.Status = to
			return nil
		}
	}
	return ErrInvalidStatus
}

// DeveloperStats aggregates per-developer deployment counters. The daily
// counter resets once more than a day has passed since the last reset.
type DeveloperStats struct {
	Developer      solana.PublicKey
	ActiveSessions uint32
	DailyDeploys   uint32
	TotalDeploys   uint64
	LastReset      time.Time
	UpdatedAt      time.Time
}

func (s *DeveloperStats) Clone() *DeveloperStats {
	cp := *s
	return &cp
}

// recordDeploy bumps the counters, rolling the daily window when stale.
func (s *DeveloperStats) recordDeploy(now time.Time) {
	if now.Sub(s.LastReset) > 24*time.Hour {
		s.DailyDeploys = 0
		s.LastReset = now
	}
	s.ActiveSessions++
	s.DailyDeploys++
	s.TotalDeploys++
}

// recordTerminal releases the session slot when a request reaches a
// terminal status.
func (s *DeveloperStats) recordTerminal() {
	if s.ActiveSessions > 0 {
		s.ActiveSessions--
	}
}

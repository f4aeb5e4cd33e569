package treasury

import (
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Deposit is one backer's position. Created on first stake and kept forever;
// IsActive is cleared when the principal reaches zero.
type Deposit struct {
	Backer          solana.PublicKey
	DepositedAmount uint64

	// RewardDebt is the settlement snapshot deposited×reward_per_share.
	// PendingRewards holds entitlement settled out of the accumulator but
	// not yet claimed, so stake-size changes never forfeit anything.
	RewardDebt     bin.Uint128
	PendingRewards uint64

	ClaimedTotal uint64

	// LockPeriod is recorded but not enforced.
	LockPeriod int64

	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *Deposit) Clone() *Deposit {
	cp := *d
	return &cp
}

// Claimable is the backer's full unclaimed entitlement at the given
// accumulator value: the settled pending bucket plus whatever accrued since
// the last debt snapshot.
func (d *Deposit) Claimable(rps bin.Uint128) (uint64, error) {
	accrued, err := accruedRewards(d.DepositedAmount, rps, d.RewardDebt)
	if err != nil {
		return 0, err
	}
	return addU64(d.PendingRewards, accrued)
}

// settle banks accrued rewards into the pending bucket and refreshes the
// debt snapshot at the current deposit size. Must run before any change to
// DepositedAmount.
func (d *Deposit) settle(rps bin.Uint128) error {
	accrued, err := accruedRewards(d.DepositedAmount, rps, d.RewardDebt)
	if err != nil {
		return err
	}
	pending, err := addU64(d.PendingRewards, accrued)
	if err != nil {
		return err
	}
	debt, err := rewardDebt(d.DepositedAmount, rps)
	if err != nil {
		return err
	}
	d.PendingRewards = pending
	d.RewardDebt = debt
	return nil
}

// resnapshot refreshes the debt at the (already updated) deposit size.
func (d *Deposit) resnapshot(rps bin.Uint128) error {
	debt, err := rewardDebt(d.DepositedAmount, rps)
	if err != nil {
		return err
	}
	d.RewardDebt = debt
	return nil
}

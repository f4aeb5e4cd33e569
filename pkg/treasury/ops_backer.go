package treasury

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// StakeSOL records a backer deposit into the treasury principal vault.
// Accrued rewards are settled before the size change so the new lamports
// earn nothing retroactively.
func (s *State) StakeSOL(now time.Time, backer solana.PublicKey, amount uint64, lockPeriod int64) (*Mutation, error) {
	if err := s.guard(backer, false); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}

	pool := s.Pool.Clone()

	var dep *Deposit
	if existing, ok := s.Deposits[backer]; ok {
		dep = existing.Clone()
		if err := dep.settle(pool.RewardPerShare); err != nil {
			return nil, err
		}
		newSize, err := addU64(dep.DepositedAmount, amount)
		if err != nil {
			return nil, err
		}
		dep.DepositedAmount = newSize
		dep.IsActive = true
		dep.LockPeriod = lockPeriod
	} else {
		dep = &Deposit{
			Backer:          backer,
			DepositedAmount: amount,
			LockPeriod:      lockPeriod,
			IsActive:        true,
			CreatedAt:       now,
		}
	}
	if err := dep.resnapshot(pool.RewardPerShare); err != nil {
		return nil, err
	}
	dep.UpdatedAt = now

	total, err := addU64(pool.TotalDeposited, amount)
	if err != nil {
		return nil, err
	}
	liquid, err := addU64(pool.LiquidBalance, amount)
	if err != nil {
		return nil, err
	}
	pool.TotalDeposited = total
	pool.LiquidBalance = liquid
	pool.UpdatedAt = now

	return &Mutation{
		Pool:     pool,
		Deposits: []*Deposit{dep},
		Events: []Event{newEvent(EventSolStaked, now, SolStakedPayload{
			Backer:         backer,
			Amount:         amount,
			NewDeposit:     dep.DepositedAmount,
			TotalDeposited: pool.TotalDeposited,
		})},
	}, nil
}

// UnstakeSOL returns principal to the backer. The withdrawal is bounded by
// both the backer's deposit and the pool's liquid balance: principal out
// with ephemeral wallets cannot be unstaked until it is settled back.
func (s *State) UnstakeSOL(now time.Time, backer solana.PublicKey, amount uint64) (*Mutation, error) {
	if err := s.guard(backer, false); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	existing, err := s.depositOf(backer)
	if err != nil {
		return nil, err
	}
	if amount > existing.DepositedAmount {
		return nil, ErrInsufficientDeposit
	}
	if amount > s.Pool.LiquidBalance {
		return nil, ErrInsufficientLiquidBalance
	}

	pool := s.Pool.Clone()
	dep := existing.Clone()
	if err := dep.settle(pool.RewardPerShare); err != nil {
		return nil, err
	}
	dep.DepositedAmount -= amount
	if dep.DepositedAmount == 0 {
		dep.IsActive = false
	}
	if err := dep.resnapshot(pool.RewardPerShare); err != nil {
		return nil, err
	}
	dep.UpdatedAt = now

	pool.TotalDeposited, err = subU64(pool.TotalDeposited, amount)
	if err != nil {
		return nil, err
	}
	pool.LiquidBalance -= amount
	pool.UpdatedAt = now

	return &Mutation{
		Pool:     pool,
		Deposits: []*Deposit{dep},
		Events: []Event{newEvent(EventSolUnstaked, now, SolUnstakedPayload{
			Backer:           backer,
			Amount:           amount,
			RemainingDeposit: dep.DepositedAmount,
			TotalDeposited:   pool.TotalDeposited,
		})},
	}, nil
}

// ClaimRewards pays out the backer's full entitlement, pending plus accrued.
// Partial claims are not supported: either the reward pool covers the whole
// amount or the operation fails.
func (s *State) ClaimRewards(now time.Time, backer solana.PublicKey) (*Mutation, error) {
	if err := s.guard(backer, false); err != nil {
		return nil, err
	}
	existing, err := s.depositOf(backer)
	if err != nil {
		return nil, err
	}
	claimable, err := existing.Claimable(s.Pool.RewardPerShare)
	if err != nil {
		return nil, err
	}
	if claimable == 0 {
		return nil, ErrNoRewardsToClaim
	}
	if claimable > s.Pool.RewardPoolBalance {
		return nil, ErrInsufficientRewardPoolBalance
	}

	pool := s.Pool.Clone()
	dep := existing.Clone()
	dep.PendingRewards = 0
	if err := dep.resnapshot(pool.RewardPerShare); err != nil {
		return nil, err
	}
	dep.ClaimedTotal, err = addU64(dep.ClaimedTotal, claimable)
	if err != nil {
		return nil, err
	}
	dep.UpdatedAt = now

	pool.RewardPoolBalance -= claimable
	pool.UpdatedAt = now

	return &Mutation{
		Pool:     pool,
		Deposits: []*Deposit{dep},
		Events: []Event{newEvent(EventClaimed, now, ClaimedPayload{
			Backer:            backer,
			Amount:            claimable,
			ClaimedTotal:      dep.ClaimedTotal,
			RewardPoolBalance: pool.RewardPoolBalance,
		})},
	}, nil
}

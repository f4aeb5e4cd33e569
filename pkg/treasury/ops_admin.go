package treasury

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Initialize creates the singleton pool with the signer as admin. A second
// call fails regardless of signer.
func (s *State) Initialize(now time.Time, admin, devWallet solana.PublicKey, initialAPYBPS uint64) (*Mutation, error) {
	if s.Pool != nil {
		return nil, ErrAlreadyInitialized
	}
	if admin.IsZero() || devWallet.IsZero() {
		return nil, ErrInvalidTreasuryWallet
	}
	if initialAPYBPS > MaxAPYBPS {
		return nil, ErrInvalidAPY
	}

	pool := &Pool{
		Admin:          admin,
		DevWallet:      devWallet,
		RewardFeeBPS:   RewardFeeBPS,
		PlatformFeeBPS: PlatformFeeBPS,
		CurrentAPYBPS:  initialAPYBPS,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return &Mutation{
		Pool: pool,
		Events: []Event{newEvent(EventTreasuryPoolInitialized, now, TreasuryPoolInitializedPayload{
			Admin:         admin,
			DevWallet:     devWallet,
			InitialAPYBPS: initialAPYBPS,
		})},
	}, nil
}

// CreditFeeToPool records fee revenue already split by the caller: feeReward
// lands in the reward pool and is distributed through the accumulator,
// feePlatform lands in the platform pool. With nothing staked the reward
// portion stays undistributed as admin-withdrawable excess.
func (s *State) CreditFeeToPool(now time.Time, admin solana.PublicKey, feeReward, feePlatform uint64) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	if feeReward > MaxAmount || feePlatform > MaxAmount {
		return nil, ErrInvalidAmount
	}
	if feeReward == 0 && feePlatform == 0 {
		return nil, ErrInvalidAmount
	}

	pool := s.Pool.Clone()
	var err error
	pool.RewardPoolBalance, err = addU64(pool.RewardPoolBalance, feeReward)
	if err != nil {
		return nil, err
	}
	pool.PlatformPoolBalance, err = addU64(pool.PlatformPoolBalance, feePlatform)
	if err != nil {
		return nil, err
	}
	distributed := false
	if feeReward > 0 {
		distributed, err = pool.distributeRewardFee(feeReward)
		if err != nil {
			return nil, err
		}
	}
	pool.UpdatedAt = now

	return &Mutation{
		Pool: pool,
		Events: []Event{newEvent(EventFeeCredited, now, FeeCreditedPayload{
			FeeReward:      feeReward,
			FeePlatform:    feePlatform,
			Distributed:    distributed,
			RewardPerShare: pool.RewardPerShare.BigInt().String(),
		})},
	}, nil
}

// EmergencyPause flips the global gate. Setting it blocks every other
// instruction; clearing it is the only instruction allowed while paused.
func (s *State) EmergencyPause(now time.Time, admin solana.PublicKey, paused bool) (*Mutation, error) {
	if err := s.adminGuard(admin); err != nil {
		return nil, err
	}

	pool := s.Pool.Clone()
	pool.EmergencyPause = paused
	pool.UpdatedAt = now

	return &Mutation{
		Pool: pool,
		Events: []Event{newEvent(EventEmergencyPauseToggled, now, EmergencyPauseToggledPayload{
			Paused: paused,
		})},
	}, nil
}

// UpdateAPY changes the advertised APY metadata. Nothing in the
// distribution math reads it.
func (s *State) UpdateAPY(now time.Time, admin solana.PublicKey, bps uint64) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	if bps > MaxAPYBPS {
		return nil, ErrInvalidAPY
	}

	pool := s.Pool.Clone()
	old := pool.CurrentAPYBPS
	pool.CurrentAPYBPS = bps
	pool.UpdatedAt = now

	return &Mutation{
		Pool: pool,
		Events: []Event{newEvent(EventApyUpdated, now, ApyUpdatedPayload{
			OldBPS: old,
			NewBPS: bps,
		})},
	}, nil
}

// WithdrawPlatform moves platform revenue out to a destination wallet.
func (s *State) WithdrawPlatform(now time.Time, admin solana.PublicKey, amount uint64, reason string, destination solana.PublicKey) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if destination.IsZero() {
		return nil, ErrInvalidTreasuryWallet
	}
	if amount > s.Pool.PlatformPoolBalance {
		return nil, ErrInsufficientPlatformPool
	}

	pool := s.Pool.Clone()
	pool.PlatformPoolBalance -= amount
	pool.UpdatedAt = now

	return &Mutation{
		Pool: pool,
		Events: []Event{newEvent(EventAdminWithdraw, now, AdminWithdrawPayload{
			Pool:             "platform",
			Amount:           amount,
			Reason:           reason,
			Destination:      destination,
			RemainingBalance: pool.PlatformPoolBalance,
		})},
	}, nil
}

// WithdrawRewardPool moves reward-pool lamports out to a destination wallet.
// Withdrawals beyond the excess not reserved for backer claims and pending
// deploy refunds still go through, but the event is flagged break-glass so
// the engine can alert on it.
func (s *State) WithdrawRewardPool(now time.Time, admin solana.PublicKey, amount uint64, reason string, destination solana.PublicKey) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if destination.IsZero() {
		return nil, ErrInvalidTreasuryWallet
	}
	if amount > s.Pool.RewardPoolBalance {
		return nil, ErrInsufficientRewardPoolBalance
	}
	excess, err := s.WithdrawableRewardExcess()
	if err != nil {
		return nil, err
	}

	pool := s.Pool.Clone()
	pool.RewardPoolBalance -= amount
	pool.UpdatedAt = now

	return &Mutation{
		Pool: pool,
		Events: []Event{newEvent(EventAdminWithdraw, now, AdminWithdrawPayload{
			Pool:             "rewards",
			Amount:           amount,
			Reason:           reason,
			Destination:      destination,
			BreakGlass:       amount > excess,
			RemainingBalance: pool.RewardPoolBalance,
		})},
	}, nil
}

// SyncLiquidBalance force-sets the tracked liquid balance from an observed
// on-chain vault balance, net of the rent-exempt reserve. Reconciliation
// escape hatch for drift the reconciler surfaced.
func (s *State) SyncLiquidBalance(now time.Time, admin solana.PublicKey, onChainBalance, rentExempt uint64) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}

	var newLiquid uint64
	if onChainBalance > rentExempt {
		newLiquid = onChainBalance - rentExempt
	}

	pool := s.Pool.Clone()
	old := pool.LiquidBalance
	pool.LiquidBalance = newLiquid
	pool.UpdatedAt = now

	return &Mutation{
		Pool: pool,
		Events: []Event{newEvent(EventLiquidBalanceSynced, now, LiquidBalanceSyncedPayload{
			OldBalance:     old,
			NewBalance:     newLiquid,
			OnChainBalance: onChainBalance,
			RentExempt:     rentExempt,
		})},
	}, nil
}

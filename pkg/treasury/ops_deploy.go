package treasury

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// CreateDeployRequest opens a funding request for a program deployment. The
// developer's payment (service fee plus the initial subscription) is
// credited to the reward pool immediately but not distributed: the
// accumulator advances only once the deployment is confirmed, so a failure
// or cancellation refunds without unwinding anyone's rewards. A hash whose
// previous request ended in a terminal status may be created again; the
// record is reset in place.
func (s *State) CreateDeployRequest(now time.Time, admin, developer solana.PublicKey, hash ProgramHash, serviceFee, monthlyFee uint64, initialMonths uint32, deploymentCost uint64) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	if err := validAmount(serviceFee); err != nil {
		return nil, err
	}
	if err := validAmount(monthlyFee); err != nil {
		return nil, err
	}
	if err := validAmount(deploymentCost); err != nil {
		return nil, err
	}
	if initialMonths == 0 {
		return nil, ErrInvalidAmount
	}
	if existing, ok := s.Requests[hash]; ok && !existing.Status.Terminal() {
		return nil, ErrInvalidStatus
	}
	if deploymentCost > s.Pool.LiquidBalance {
		return nil, ErrInsufficientTreasuryFunds
	}
	paidFor, err := subscriptionExtension(initialMonths)
	if err != nil {
		return nil, err
	}

	req := &DeployRequest{
		Developer:             developer,
		ProgramHash:           hash,
		ServiceFee:            serviceFee,
		MonthlyFee:            monthlyFee,
		InitialMonths:         initialMonths,
		DeploymentCost:        deploymentCost,
		SubscriptionPaidUntil: now.Add(paidFor),
		Status:                StatusPendingDeployment,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	credit, err := req.rewardCredit()
	if err != nil {
		return nil, err
	}
	platformFee, err := mulU64(deploymentCost, s.Pool.PlatformFeeBPS)
	if err != nil {
		return nil, err
	}
	platformFee /= 10_000

	pool := s.Pool.Clone()
	pool.RewardPoolBalance, err = addU64(pool.RewardPoolBalance, credit)
	if err != nil {
		return nil, err
	}
	pool.PlatformPoolBalance, err = addU64(pool.PlatformPoolBalance, platformFee)
	if err != nil {
		return nil, err
	}
	pool.UpdatedAt = now

	var stats *DeveloperStats
	if existing, ok := s.Stats[developer]; ok {
		stats = existing.Clone()
	} else {
		stats = &DeveloperStats{Developer: developer, LastReset: now}
	}
	stats.recordDeploy(now)
	stats.UpdatedAt = now

	return &Mutation{
		Pool:     pool,
		Requests: []*DeployRequest{req},
		Stats:    []*DeveloperStats{stats},
		Events: []Event{newEvent(EventDeployRequestCreated, now, DeployRequestCreatedPayload{
			ProgramHash:           hash,
			Developer:             developer,
			ServiceFee:            serviceFee,
			MonthlyFee:            monthlyFee,
			InitialMonths:         initialMonths,
			DeploymentCost:        deploymentCost,
			RewardCredit:          credit,
			PlatformFee:           platformFee,
			SubscriptionPaidUntil: req.SubscriptionPaidUntil,
		})},
	}, nil
}

// FundTemporaryWallet advances the deployment cost to an ephemeral wallet.
// By default the advance comes from liquid principal and is tracked as
// borrowed until confirmation settles it back; with usePlatformPool the
// platform pool fronts the cost instead and principal accounting is
// untouched.
func (s *State) FundTemporaryWallet(now time.Time, admin solana.PublicKey, hash ProgramHash, ephemeralKey solana.PublicKey, cost uint64, usePlatformPool bool) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	if err := validAmount(cost); err != nil {
		return nil, err
	}
	if ephemeralKey.IsZero() {
		return nil, ErrInvalidTreasuryWallet
	}
	existing, err := s.requestOf(hash)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusPendingDeployment || existing.Funded() {
		return nil, ErrInvalidStatus
	}

	pool := s.Pool.Clone()
	req := existing.Clone()
	if usePlatformPool {
		if cost > pool.PlatformPoolBalance {
			return nil, ErrInsufficientPlatformPool
		}
		pool.PlatformPoolBalance -= cost
		req.FundedFrom = FundedFromPlatform
	} else {
		if cost > pool.LiquidBalance {
			return nil, ErrInsufficientLiquidBalance
		}
		pool.LiquidBalance -= cost
		pool.BorrowedAmount, err = addU64(pool.BorrowedAmount, cost)
		if err != nil {
			return nil, err
		}
		req.FundedFrom = FundedFromTreasury
	}
	req.EphemeralKey = &ephemeralKey
	req.BorrowedAmount = cost
	req.UpdatedAt = now
	pool.UpdatedAt = now

	return &Mutation{
		Pool:     pool,
		Requests: []*DeployRequest{req},
		Events: []Event{newEvent(EventTemporaryWalletFunded, now, TemporaryWalletFundedPayload{
			ProgramHash:  hash,
			EphemeralKey: ephemeralKey,
			Cost:         cost,
			Source:       req.FundedFrom,
		})},
	}, nil
}

// ConfirmDeploymentSuccess settles a funded request: leftover lamports
// return to the vault that advanced them, the consumed remainder is written
// off, the request goes Active, and only now does the developer's payment
// distribute through the accumulator.
func (s *State) ConfirmDeploymentSuccess(now time.Time, admin solana.PublicKey, hash ProgramHash, deployedProgramID solana.PublicKey, recoveredFunds uint64) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	if deployedProgramID.IsZero() {
		return nil, ErrInvalidTreasuryWallet
	}
	existing, err := s.requestOf(hash)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusPendingDeployment {
		return nil, ErrInvalidStatus
	}
	if recoveredFunds > existing.BorrowedAmount {
		return nil, ErrInvalidAmount
	}

	pool := s.Pool.Clone()
	req := existing.Clone()
	consumed := req.BorrowedAmount - recoveredFunds
	if req.BorrowedAmount > 0 {
		switch req.FundedFrom {
		case FundedFromPlatform:
			pool.PlatformPoolBalance, err = addU64(pool.PlatformPoolBalance, recoveredFunds)
			if err != nil {
				return nil, err
			}
		default:
			pool.BorrowedAmount, err = subU64(pool.BorrowedAmount, req.BorrowedAmount)
			if err != nil {
				return nil, err
			}
			pool.LiquidBalance, err = addU64(pool.LiquidBalance, recoveredFunds)
			if err != nil {
				return nil, err
			}
		}
	}
	req.BorrowedAmount = 0
	req.DeployedProgramID = &deployedProgramID
	if err := req.transition(StatusActive); err != nil {
		return nil, err
	}
	req.UpdatedAt = now

	credit, err := req.rewardCredit()
	if err != nil {
		return nil, err
	}
	distributed, err := pool.distributeRewardFee(credit)
	if err != nil {
		return nil, err
	}
	pool.UpdatedAt = now

	return &Mutation{
		Pool:     pool,
		Requests: []*DeployRequest{req},
		Events: []Event{newEvent(EventDeploymentConfirmed, now, DeploymentConfirmedPayload{
			ProgramHash:        hash,
			ProgramID:          deployedProgramID,
			Developer:          req.Developer,
			Recovered:          recoveredFunds,
			Consumed:           consumed,
			DistributedRewards: credit,
			Distributed:        distributed,
			RewardPerShare:     pool.RewardPerShare.BigInt().String(),
		})},
	}, nil
}

// ConfirmDeploymentFailure unwinds a pending request: the developer's full
// payment refunds from the reward pool and any advanced funds return to the
// vault that fronted them. No accumulator rollback is needed because the
// payment was never distributed.
func (s *State) ConfirmDeploymentFailure(now time.Time, admin solana.PublicKey, hash ProgramHash, reason string) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	existing, err := s.requestOf(hash)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusPendingDeployment {
		return nil, ErrInvalidStatus
	}
	refund, err := existing.rewardCredit()
	if err != nil {
		return nil, err
	}
	if refund > s.Pool.RewardPoolBalance {
		return nil, ErrInsufficientRewardPoolBalance
	}

	pool := s.Pool.Clone()
	req := existing.Clone()
	pool.RewardPoolBalance -= refund

	returned := req.BorrowedAmount
	if returned > 0 {
		switch req.FundedFrom {
		case FundedFromPlatform:
			pool.PlatformPoolBalance, err = addU64(pool.PlatformPoolBalance, returned)
			if err != nil {
				return nil, err
			}
		default:
			pool.BorrowedAmount, err = subU64(pool.BorrowedAmount, returned)
			if err != nil {
				return nil, err
			}
			pool.LiquidBalance, err = addU64(pool.LiquidBalance, returned)
			if err != nil {
				return nil, err
			}
		}
	}
	req.BorrowedAmount = 0
	req.FailReason = reason
	if err := req.transition(StatusFailed); err != nil {
		return nil, err
	}
	req.UpdatedAt = now
	pool.UpdatedAt = now

	m := &Mutation{
		Pool:     pool,
		Requests: []*DeployRequest{req},
		Events: []Event{newEvent(EventDeploymentFailed, now, DeploymentFailedPayload{
			ProgramHash:    hash,
			Developer:      req.Developer,
			Reason:         reason,
			Refund:         refund,
			ReturnedToPool: returned,
		})},
	}
	if st, ok := s.Stats[req.Developer]; ok {
		stats := st.Clone()
		stats.recordTerminal()
		stats.UpdatedAt = now
		m.Stats = []*DeveloperStats{stats}
	}
	return m, nil
}

// CancelDeployRequest withdraws a pending request before any funds moved.
// The developer or the admin may cancel; a request that already funded an
// ephemeral wallet must go through failure confirmation instead.
func (s *State) CancelDeployRequest(now time.Time, signer solana.PublicKey, hash ProgramHash) (*Mutation, error) {
	if err := s.guard(signer, false); err != nil {
		return nil, err
	}
	existing, err := s.requestOf(hash)
	if err != nil {
		return nil, err
	}
	if signer != existing.Developer && signer != s.Pool.Admin {
		return nil, ErrUnauthorized
	}
	if existing.Status != StatusPendingDeployment || existing.Funded() {
		return nil, ErrInvalidStatus
	}
	refund, err := existing.rewardCredit()
	if err != nil {
		return nil, err
	}
	if refund > s.Pool.RewardPoolBalance {
		return nil, ErrInsufficientRewardPoolBalance
	}

	pool := s.Pool.Clone()
	req := existing.Clone()
	pool.RewardPoolBalance -= refund
	if err := req.transition(StatusCancelled); err != nil {
		return nil, err
	}
	req.UpdatedAt = now
	pool.UpdatedAt = now

	m := &Mutation{
		Pool:     pool,
		Requests: []*DeployRequest{req},
		Events: []Event{newEvent(EventDeployRequestCancelled, now, DeployRequestCancelledPayload{
			ProgramHash: hash,
			Developer:   req.Developer,
			Refund:      refund,
		})},
	}
	if st, ok := s.Stats[req.Developer]; ok {
		stats := st.Clone()
		stats.recordTerminal()
		stats.UpdatedAt = now
		m.Stats = []*DeveloperStats{stats}
	}
	return m, nil
}

// PaySubscription extends a confirmed deployment's paid window by whole
// months. The payment distributes immediately: the deployment already
// succeeded, so there is nothing left to refund. Paying an expired
// subscription back into the future reactivates it.
func (s *State) PaySubscription(now time.Time, developer solana.PublicKey, hash ProgramHash, months uint32) (*Mutation, error) {
	if err := s.guard(developer, false); err != nil {
		return nil, err
	}
	if months == 0 {
		return nil, ErrInvalidAmount
	}
	existing, err := s.requestOf(hash)
	if err != nil {
		return nil, err
	}
	if developer != existing.Developer {
		return nil, ErrUnauthorized
	}
	if existing.Status != StatusActive && existing.Status != StatusSubscriptionExpired {
		return nil, ErrInvalidStatus
	}
	amount, err := mulU64(existing.MonthlyFee, uint64(months))
	if err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	paidFor, err := subscriptionExtension(months)
	if err != nil {
		return nil, err
	}

	pool := s.Pool.Clone()
	req := existing.Clone()
	pool.RewardPoolBalance, err = addU64(pool.RewardPoolBalance, amount)
	if err != nil {
		return nil, err
	}
	distributed, err := pool.distributeRewardFee(amount)
	if err != nil {
		return nil, err
	}

	req.SubscriptionPaidUntil = req.SubscriptionPaidUntil.Add(paidFor)
	reactivated := false
	if req.Status == StatusSubscriptionExpired && req.SubscriptionPaidUntil.After(now) {
		if err := req.transition(StatusActive); err != nil {
			return nil, err
		}
		reactivated = true
	}
	req.UpdatedAt = now
	pool.UpdatedAt = now

	return &Mutation{
		Pool:     pool,
		Requests: []*DeployRequest{req},
		Events: []Event{newEvent(EventSubscriptionPaid, now, SubscriptionPaidPayload{
			ProgramHash: hash,
			Developer:   developer,
			Months:      months,
			Amount:      amount,
			PaidUntil:   req.SubscriptionPaidUntil,
			Distributed: distributed,
			Reactivated: reactivated,
		})},
	}, nil
}

// SuspendExpiredPrograms suspends every listed request whose subscription
// has lapsed. Hashes that are unknown, not yet expired, or in the wrong
// status are skipped rather than failing the batch.
func (s *State) SuspendExpiredPrograms(now time.Time, admin solana.PublicKey, hashes []ProgramHash) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}

	seen := make(map[ProgramHash]bool, len(hashes))
	var suspended []ProgramHash
	var requests []*DeployRequest
	for _, hash := range hashes {
		if seen[hash] {
			continue
		}
		seen[hash] = true
		existing, ok := s.Requests[hash]
		if !ok {
			continue
		}
		if existing.Status != StatusActive && existing.Status != StatusSubscriptionExpired {
			continue
		}
		if !now.After(existing.SubscriptionPaidUntil) {
			continue
		}
		req := existing.Clone()
		if err := req.transition(StatusSuspended); err != nil {
			return nil, err
		}
		req.UpdatedAt = now
		requests = append(requests, req)
		suspended = append(suspended, hash)
	}

	return &Mutation{
		Requests: requests,
		Events: []Event{newEvent(EventProgramsSuspended, now, ProgramsSuspendedPayload{
			ProgramHashes: suspended,
			Count:         len(suspended),
		})},
	}, nil
}

// CloseProgramAndRefund retires an active deployment and books the lamports
// recovered from closing its on-chain accounts back into liquid principal.
func (s *State) CloseProgramAndRefund(now time.Time, admin solana.PublicKey, hash ProgramHash, recoveredLamports uint64) (*Mutation, error) {
	if err := s.guard(admin, true); err != nil {
		return nil, err
	}
	if err := validAmount(recoveredLamports); err != nil {
		return nil, err
	}
	existing, err := s.requestOf(hash)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusActive {
		return nil, ErrInvalidStatus
	}

	pool := s.Pool.Clone()
	req := existing.Clone()
	pool.LiquidBalance, err = addU64(pool.LiquidBalance, recoveredLamports)
	if err != nil {
		return nil, err
	}
	if err := req.transition(StatusClosed); err != nil {
		return nil, err
	}
	req.UpdatedAt = now
	pool.UpdatedAt = now

	m := &Mutation{
		Pool:     pool,
		Requests: []*DeployRequest{req},
		Events: []Event{newEvent(EventProgramClosed, now, ProgramClosedPayload{
			ProgramHash: hash,
			ProgramID:   req.DeployedProgramID,
			Developer:   req.Developer,
			Recovered:   recoveredLamports,
		})},
	}
	if st, ok := s.Stats[req.Developer]; ok {
		stats := st.Clone()
		stats.recordTerminal()
		stats.UpdatedAt = now
		m.Stats = []*DeveloperStats{stats}
	}
	return m, nil
}

// SweepExpiredSubscriptions moves every active request whose paid window has
// lapsed to SubscriptionExpired. Returns nil when there is nothing to do so
// the caller can skip the commit entirely.
func (s *State) SweepExpiredSubscriptions(now time.Time) (*Mutation, error) {
	if s.Pool == nil || s.Pool.EmergencyPause {
		return nil, nil
	}

	var requests []*DeployRequest
	var events []Event
	for _, existing := range s.RequestsWithStatus(StatusActive) {
		if !now.After(existing.SubscriptionPaidUntil) {
			continue
		}
		req := existing.Clone()
		if err := req.transition(StatusSubscriptionExpired); err != nil {
			return nil, err
		}
		req.UpdatedAt = now
		requests = append(requests, req)
		events = append(events, newEvent(EventSubscriptionExpired, now, SubscriptionExpiredPayload{
			ProgramHash: req.ProgramHash,
			PaidUntil:   req.SubscriptionPaidUntil,
		}))
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &Mutation{Requests: requests, Events: events}, nil
}

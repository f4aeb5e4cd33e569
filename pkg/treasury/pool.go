package treasury

import (
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Pool is the singleton aggregate: tracked balances for the three vaults,
// the reward accumulator, and the admin identity. Tracked balances mirror
// the on-chain vault balances minus their rent-exempt reserve; the
// reconciler continuously checks that equivalence.
type Pool struct {
	Admin     solana.PublicKey
	DevWallet solana.PublicKey

	// RewardPerShare only ever grows, scaled by Precision.
	RewardPerShare bin.Uint128

	// TotalDeposited is the sum of all active backer deposits. It is the
	// denominator of every accumulator advance.
	TotalDeposited uint64

	// LiquidBalance is the part of the principal vault available to fund
	// deployments or pay out unstakes. BorrowedAmount is principal
	// currently out with ephemeral wallets.
	LiquidBalance  uint64
	BorrowedAmount uint64

	RewardPoolBalance   uint64
	PlatformPoolBalance uint64

	RewardFeeBPS   uint64
	PlatformFeeBPS uint64

	// CurrentAPYBPS is advertised metadata; the distribution math never
	// reads it.
	CurrentAPYBPS uint64

	EmergencyPause bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Pool) Clone() *Pool {
	cp := *p
	return &cp
}

// distributeRewardFee advances the accumulator for fee lamports. With
// nothing staked there is no denominator: the revenue stays in the reward
// pool as admin-withdrawable excess and distributed reports false.
func (p *Pool) distributeRewardFee(fee uint64) (distributed bool, err error) {
	if p.TotalDeposited == 0 {
		return false, nil
	}
	rps, err := accrueRewardPerShare(p.RewardPerShare, fee, p.TotalDeposited)
	if err != nil {
		return false, err
	}
	p.RewardPerShare = rps
	return true, nil
}

// Package treasury implements the accounting core of the shared-liquidity
// deployment treasury: backer principal, fee revenue, and the
// reward-per-share distribution that couples them.
//
// The package is a pure state machine. Operations never perform I/O; each
// one computes a Mutation (replacement records plus audit events) against
// the current State, and the caller decides whether to apply it. Nothing in
// State changes until Apply, so a failed persistence step leaves the ledger
// untouched.
package treasury

// Lamport accounting constants. These are fixed protocol parameters, not
// tunables.
const (
	// Precision scales the reward-per-share accumulator so that integer
	// division loses at most one lamport per backer per settlement.
	Precision = 1_000_000_000_000

	// RewardFeeBPS and PlatformFeeBPS describe the developer fee split:
	// 1% of fee revenue is distributed to backers, 0.1% of the deployment
	// cost funds the platform pool.
	RewardFeeBPS   = 100
	PlatformFeeBPS = 10

	// MaxAPYBPS bounds the advertised APY metadata. The distribution math
	// never reads it.
	MaxAPYBPS = 10_000

	// SecondsPerMonth is the subscription billing unit: 30 days flat.
	SecondsPerMonth = 30 * 86_400

	LamportsPerSOL = 1_000_000_000

	// MaxAmount caps every externally supplied lamport amount (1e18, one
	// billion SOL). Keeps sums inside uint64 and the accumulator products
	// inside 128 bits.
	MaxAmount = 1_000_000_000 * LamportsPerSOL
)

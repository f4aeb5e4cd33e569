package treasury

import "errors"

// Operation errors. Every instruction aborts with one of these; the ledger
// is never partially mutated.
var (
	// Authorization.
	ErrUnauthorized = errors.New("signer is not authorized for this operation")

	// Lifecycle.
	ErrAlreadyInitialized   = errors.New("treasury pool is already initialized")
	ErrNotInitialized       = errors.New("treasury pool is not initialized")
	ErrEmergencyPauseActive = errors.New("emergency pause is active")
	ErrInvalidStatus        = errors.New("deploy request status does not permit this operation")

	// Arithmetic. Guarded; surfacing one of these means the books are
	// corrupt or an input escaped validation.
	ErrMathOverflow   = errors.New("arithmetic overflow")
	ErrDivisionByZero = errors.New("division by zero")

	// Economics.
	ErrInsufficientDeposit           = errors.New("amount exceeds deposited balance")
	ErrInsufficientLiquidBalance     = errors.New("insufficient liquid balance")
	ErrInsufficientRewardPoolBalance = errors.New("insufficient reward pool balance")
	ErrInsufficientPlatformPool      = errors.New("insufficient platform pool balance")
	ErrInsufficientTreasuryFunds     = errors.New("insufficient treasury funds")
	ErrNoRewardsToClaim              = errors.New("no rewards to claim")

	// Input.
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidAPY            = errors.New("invalid apy")
	ErrInvalidTreasuryWallet = errors.New("invalid treasury wallet")

	// Lookups.
	ErrDepositNotFound       = errors.New("backer deposit not found")
	ErrDeployRequestNotFound = errors.New("deploy request not found")
)

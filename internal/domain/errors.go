package domain

import "errors"

// Validation errors: the caller's input is wrong and must be corrected.
var (
	ErrDuplicateMarket        = errors.New("market already exists")
	ErrInvalidResolutionTime  = errors.New("resolution time must be in the future")
	ErrEmptyQuestion          = errors.New("question is empty")
	ErrInvalidOption          = errors.New("option must be 0 or 1")
	ErrBetTooSmall            = errors.New("bet below minimum")
	ErrBetTooLarge            = errors.New("bet above maximum")
	ErrInvalidLimits          = errors.New("min bet must be below max bet")
	ErrFeeTooHigh             = errors.New("fee exceeds 1000 bps ceiling")
	ErrInvalidResolverAddress = errors.New("resolver address is zero")
)

// State errors: a precondition on current ledger state failed. Some clear
// themselves (ErrTooEarly once the resolution time passes); callers poll the
// read API and retry.
var (
	ErrMarketNotFound     = errors.New("market not found")
	ErrMarketNotActive    = errors.New("market not active")
	ErrMarketNotResolved  = errors.New("market not resolved")
	ErrMarketNotCancelled = errors.New("market not cancelled")
	ErrTooEarly           = errors.New("resolution time not reached")
)

// Authorization errors: permanent for the calling identity.
var (
	ErrNotAuthorized = errors.New("caller not authorized")
	ErrNotOwner      = errors.New("caller is not the owner")
)

// Settlement errors: empty-result conditions, not faults.
var (
	ErrNoBetsFound        = errors.New("no bets found")
	ErrNoWinningsToClaim  = errors.New("no winnings to claim")
	ErrNoRefundsAvailable = errors.New("no refunds available")
	ErrNoFeesToWithdraw   = errors.New("no fees to withdraw")
)

// Infrastructure errors shared across adapters.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockHeld          = errors.New("lock already held")
)

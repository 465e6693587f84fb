package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// Params is the admin-owned ledger configuration snapshot. Services read it
// per call; bet bounds are enforced against the snapshot current at placement
// time, never retroactively.
type Params struct {
	FeeBps int64 `json:"fee_bps"` // platform fee on profit, 10000 = 100%
	MinBet int64 `json:"min_bet"` // micro-units
	MaxBet int64 `json:"max_bet"` // micro-units
}

// LedgerStore is the durable market-and-bet ledger. Every mutating method
// executes as a single transaction: status checks, pool updates, claimed-flag
// writes and the matching account movement commit together or not at all.
type LedgerStore interface {
	// CreateMarket inserts a new market. Returns ErrDuplicateMarket when the
	// ID is already present.
	CreateMarket(ctx context.Context, m Market) error

	GetMarket(ctx context.Context, id common.Hash) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	CountMarkets(ctx context.Context) (int64, error)

	// PlaceBet appends the bet, increments the matching option pool and the
	// total pool, and debits the bettor's account, atomically. The market
	// must be active. Returns the bet with its assigned ID.
	PlaceBet(ctx context.Context, bet Bet) (Bet, error)

	// ResolveMarket transitions an active market to resolved with the given
	// winning option. Terminal; pools are frozen from this point on.
	ResolveMarket(ctx context.Context, id common.Hash, winningOption int) error

	// CancelMarket transitions an active market to cancelled. Terminal.
	CancelMarket(ctx context.Context, id common.Hash) error

	ListBets(ctx context.Context, marketID common.Hash, opts ListOpts) ([]Bet, error)
	ListBettorBets(ctx context.Context, marketID common.Hash, bettor common.Address) ([]Bet, error)

	// ClaimWinnings settles every unclaimed winning bet the bettor holds on a
	// resolved market: marks them claimed, accrues the platform fee, and
	// credits the summed payout to the bettor's account, atomically.
	ClaimWinnings(ctx context.Context, marketID common.Hash, bettor common.Address, feeBps int64) (Settlement, error)

	// RefundBets returns the full principal of every unclaimed bet the
	// bettor holds on a cancelled market, marking each claimed.
	RefundBets(ctx context.Context, marketID common.Hash, bettor common.Address) (Settlement, error)
}

// AdminStore owns the mutable ledger parameters, the authorized-resolver set
// and the collected-fee accumulator.
type AdminStore interface {
	GetParams(ctx context.Context) (Params, error)
	SetFeeBps(ctx context.Context, feeBps int64) error
	SetBetLimits(ctx context.Context, minBet, maxBet int64) error

	SetResolver(ctx context.Context, resolver common.Address, authorized bool) error
	IsResolver(ctx context.Context, resolver common.Address) (bool, error)
	ListResolvers(ctx context.Context) ([]common.Address, error)

	CollectedFees(ctx context.Context) (int64, error)

	// WithdrawFees credits the full collected-fee balance to the given
	// account and zeroes the accumulator, atomically. Returns the amount
	// moved, or ErrNoFeesToWithdraw when the balance is zero.
	WithdrawFees(ctx context.Context, to common.Address) (int64, error)
}

// AccountStore holds internal account balances, the value-transfer medium
// the ledger settles against. Deposits and withdrawals through external
// media (e.g. the ERC20 custody bridge) move this balance.
type AccountStore interface {
	Balance(ctx context.Context, addr common.Address) (int64, error)
	Deposit(ctx context.Context, addr common.Address, amount int64) error
	// Withdraw debits the account; returns ErrInsufficientFunds when the
	// balance does not cover the amount.
	Withdraw(ctx context.Context, addr common.Address, amount int64) error
}

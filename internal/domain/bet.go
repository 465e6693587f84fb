package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Bet is a single stake on one option of a market. A bettor may hold any
// number of bets per market, including on both options.
type Bet struct {
	ID       int64          `json:"id"` // assigned by the ledger store, insertion-ordered per market
	MarketID common.Hash    `json:"market_id"`
	Bettor   common.Address `json:"bettor"`
	Option   int            `json:"option"`
	Amount   int64          `json:"amount"` // micro-units, min/max-bounded at placement
	PlacedAt time.Time      `json:"placed_at"`

	// Claimed flips to true exactly once, on the first successful claim or
	// refund, and never back.
	Claimed bool `json:"claimed"`
}

// Settlement is the outcome of a claim or refund call: the summed payout
// across the caller's unclaimed bets, the fee withheld from profit, and how
// many bets were settled. The payout is moved in a single transfer.
type Settlement struct {
	MarketID common.Hash    `json:"market_id"`
	Bettor   common.Address `json:"bettor"`
	Payout   int64          `json:"payout"` // micro-units, principal included
	Fee      int64          `json:"fee"`    // micro-units withheld from profit
	Bets     int            `json:"bets"`   // number of bets marked claimed
}

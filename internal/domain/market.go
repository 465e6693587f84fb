package domain

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MarketStatus represents the lifecycle state of a market.
//
// The only reachable transitions are active -> resolved and
// active -> cancelled; both are terminal.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"

	// MarketStatusLocked is reserved for a pre-resolution freeze window.
	// No code path currently transitions a market into it.
	MarketStatusLocked MarketStatus = "locked"
)

// MarketType classifies which external event class resolves a market. It is
// descriptive metadata for the resolver; settlement never interprets it.
type MarketType string

const (
	MarketTypeBlock    MarketType = "block"    // block-metric thresholds
	MarketTypeTransfer MarketType = "transfer" // token-transfer amounts
	MarketTypeGame     MarketType = "game"     // in-game outcomes
)

// Binary option indices. Every market has exactly these two sides.
const (
	OptionYes = 0
	OptionNo  = 1
)

// ValidOption reports whether opt is one of the two binary option indices.
func ValidOption(opt int) bool {
	return opt == OptionYes || opt == OptionNo
}

// Comparator is the explicit comparison operator the resolver applies to the
// market's threshold. Stored at creation so the resolver never has to infer
// semantics from the free-text question.
type Comparator string

const (
	ComparatorGreaterThan Comparator = "gt"
	ComparatorLessThan    Comparator = "lt"
)

// Market is a single binary-outcome prediction question with its own stake
// pools and lifecycle status.
//
// All monetary fields are int64 micro-units (1e6 = 1.0).
type Market struct {
	ID             common.Hash    `json:"id"`
	Type           MarketType     `json:"type"`
	Question       string         `json:"question"`
	Creator        common.Address `json:"creator"`
	CreatedAt      time.Time      `json:"created_at"`
	ResolutionTime time.Time      `json:"resolution_time"`
	Status         MarketStatus   `json:"status"`
	WinningOption  int            `json:"winning_option"` // meaningful only when resolved
	TotalPool      int64          `json:"total_pool"`
	OptionPools    [2]int64       `json:"option_pools"`

	// Resolver parameters, stored opaquely for the off-chain resolver.
	DataSourceID   string         `json:"data_source_id"`
	Comparator     Comparator     `json:"comparator"`
	Threshold      int64          `json:"threshold"`
	ThresholdToken common.Address `json:"threshold_token"`
}

// DeriveMarketID computes the content-addressed market identifier as
// Keccak256(creator || createdAt-nanos || question). Two creations with
// identical inputs collide, which callers must treat as a duplicate.
func DeriveMarketID(creator common.Address, createdAt time.Time, question string) common.Hash {
	buf := make([]byte, 0, common.AddressLength+8+len(question))
	buf = append(buf, creator.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt.UnixNano()))
	buf = append(buf, question...)
	return crypto.Keccak256Hash(buf)
}

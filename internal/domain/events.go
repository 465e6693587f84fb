package domain

import (
	"encoding/json"
	"time"
)

// Signal-bus channels for ledger events. The websocket hub re-broadcasts
// these to subscribed clients; the off-chain resolver watches ChannelMarket
// for creations.
const (
	ChannelMarket = "ch:market"
	ChannelBet    = "ch:bet"
	ChannelSettle = "ch:settle"
	ChannelAdmin  = "ch:admin"
)

// Event types carried on the signal bus.
const (
	EventMarketCreated   = "market_created"
	EventBetPlaced       = "bet_placed"
	EventMarketResolved  = "market_resolved"
	EventMarketCancelled = "market_cancelled"
	EventWinningsClaimed = "winnings_claimed"
	EventBetsRefunded    = "bets_refunded"
	EventFeesWithdrawn   = "fees_withdrawn"
	EventFeeUpdated      = "fee_updated"
	EventLimitsUpdated   = "limits_updated"
	EventResolverUpdated = "resolver_updated"
)

// Event is the envelope published for every ledger mutation. Payload holds
// the relevant record (Market, Bet, Settlement, Params, ...) as defined per
// event type.
type Event struct {
	Type    string    `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// NewEvent builds an event envelope stamped with the current time.
func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, At: time.Now().UTC(), Payload: payload}
}

// Marshal serializes the event for the signal bus.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

package domain

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies a chain event the engine reduces into AuctionState.
type EventKind string

const (
	EventAuctionStarted EventKind = "auction_started"
	EventLeadTaken      EventKind = "lead_taken"
	EventSettled        EventKind = "settled"
	EventPriceRefreshed EventKind = "price_refreshed"
)

// Event is a normalized chain notification. The provider guarantees
// at-least-once delivery; the engine deduplicates settlement events by
// TxHash+LogIndex within a bounded retention window.
type Event struct {
	Kind     EventKind
	At       time.Time
	TxHash   common.Hash
	LogIndex uint

	// AuctionStarted
	Curve Curve
	Round uint64

	// LeadTaken
	Leader common.Address
	Paid   *big.Int
	Rate   *big.Int

	// Settled / PriceRefreshed
	Price *big.Int

	// SafetyMultiplier accompanies price refreshes.
	SafetyMultiplier float64
}

// DedupKey identifies a settlement event for at-least-once deduplication.
func (e Event) DedupKey() string {
	return e.TxHash.Hex() + ":" + strconv.FormatUint(uint64(e.LogIndex), 10)
}

package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Apply reduces one chain event into a new AuctionState. It is a pure
// function: the input state is never mutated, so the engine's tick always
// reads either the full old state or the full new one, never a mix.
func Apply(state domain.AuctionState, ev domain.Event) domain.AuctionState {
	next := state

	switch ev.Kind {
	case domain.EventAuctionStarted:
		next.Curve = ev.Curve
		next.Round = ev.Round
		next.DecayActive = true
		next.Price = new(big.Int).Set(ev.Curve.Start)

	case domain.EventLeadTaken:
		next.Leader = ev.Leader
		next.LeaderPaid = new(big.Int).Set(ev.Paid)
		next.AccrualRate = new(big.Int).Set(ev.Rate)
		next.LeadStart = ev.At

	case domain.EventSettled:
		next.DecayActive = false
		next.LastSettled = new(big.Int).Set(ev.Price)
		next.Leader = common.Address{}
		next.LeaderPaid = big.NewInt(0)
		next.AccrualRate = big.NewInt(0)

	case domain.EventPriceRefreshed:
		next.Price = new(big.Int).Set(ev.Price)
		next.SafetyMultiplier = ev.SafetyMultiplier
	}

	return next
}

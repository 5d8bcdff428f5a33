package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

const (
	snapshotKey = "auction:snapshot"
	settledKey  = "auction:last_settled"
)

// AuctionCache implements domain.AuctionCache using Redis hashes. The
// snapshot lives at a fixed key since the bot watches a single auction
// contract; dashboards read it without touching the engine.
type AuctionCache struct {
	client *Client
}

// NewAuctionCache creates an AuctionCache backed by the given Client.
func NewAuctionCache(c *Client) *AuctionCache {
	return &AuctionCache{client: c}
}

// SetSnapshot stores the latest auction state as a hash.
func (ac *AuctionCache) SetSnapshot(ctx context.Context, state domain.AuctionState, at time.Time) error {
	fields := map[string]interface{}{
		"price":             state.Price.String(),
		"round":             strconv.FormatUint(state.Round, 10),
		"leader":            state.Leader.Hex(),
		"leader_paid":       state.LeaderPaid.String(),
		"decay_active":      strconv.FormatBool(state.DecayActive),
		"safety_multiplier": strconv.FormatFloat(state.SafetyMultiplier, 'f', -1, 64),
		"ts":                strconv.FormatInt(at.UnixNano(), 10),
	}
	ctx, cancel := bound(ctx)
	defer cancel()
	if err := ac.client.rdb.HSet(ctx, snapshotKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// SetLastSettled stores the most recent settlement price and round.
func (ac *AuctionCache) SetLastSettled(ctx context.Context, price *big.Int, round uint64) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"round": strconv.FormatUint(round, 10),
	}
	ctx, cancel := bound(ctx)
	defer cancel()
	if err := ac.client.rdb.HSet(ctx, settledKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set last settled: %w", err)
	}
	return nil
}

// GetLastSettled retrieves the most recent settlement price and round.
// It returns domain.ErrNotFound when no settlement has been cached.
func (ac *AuctionCache) GetLastSettled(ctx context.Context) (*big.Int, uint64, error) {
	ctx, cancel := bound(ctx)
	defer cancel()
	vals, err := ac.client.rdb.HGetAll(ctx, settledKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis: get last settled: %w", err)
	}
	if len(vals) == 0 {
		return nil, 0, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return nil, 0, fmt.Errorf("redis: cached price %q is not an integer", priceStr)
	}

	round, err := strconv.ParseUint(vals["round"], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("redis: parse round: %w", err)
	}

	return price, round, nil
}

// Compile-time interface check.
var _ domain.AuctionCache = (*AuctionCache)(nil)

package chain

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

const defaultRefreshInterval = 15 * time.Second

// Provider is what the rest of the bot sees of the chain: the log feed
// drives the engine's event queue, and a periodic refresh pushes the
// authoritative price and the current safety multiplier alongside it.
type Provider struct {
	client   *Client
	feed     *Feed
	events   chan<- domain.Event
	interval time.Duration
	logger   *slog.Logger
}

// NewProvider wires the client and feed to the engine's event queue.
func NewProvider(client *Client, feed *Feed, out chan<- domain.Event, refreshInterval time.Duration, logger *slog.Logger) *Provider {
	if refreshInterval <= 0 {
		refreshInterval = defaultRefreshInterval
	}
	return &Provider{
		client:   client,
		feed:     feed,
		events:   out,
		interval: refreshInterval,
		logger:   logger.With(slog.String("component", "provider")),
	}
}

// Run connects the feed and refreshes chain state until the context is
// cancelled.
func (p *Provider) Run(ctx context.Context) error {
	if err := p.feed.Connect(ctx); err != nil {
		return err
	}
	defer p.feed.Close()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

// refresh reads the authoritative price and safety multiplier and pushes
// them as one event. Failures are logged and retried next interval.
func (p *Provider) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	price, err := p.client.CurrentPrice(ctx)
	if err != nil {
		p.logger.Warn("price refresh failed", slog.String("error", err.Error()))
		return
	}
	mult, err := p.client.SafetyMultiplier(ctx)
	if err != nil {
		p.logger.Warn("safety multiplier fetch failed", slog.String("error", err.Error()))
		return
	}

	ev := domain.Event{
		Kind:             domain.EventPriceRefreshed,
		At:               time.Now().UTC(),
		Price:            price,
		SafetyMultiplier: mult,
	}
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

package agent

import (
	"context"
	"log"
	"time"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

// PriceResolver is the shared price capability; the market maker uses the
// same one.
type PriceResolver interface {
	Resolve(ctx context.Context) (uint64, bool)
}

// MarketSender submits one market order through the account's execution
// queue. The call blocks until the transaction resolves.
type MarketSender interface {
	PlaceMarketOrder(ctx context.Context, side exchange.Side, quantity uint64) error
}

// Agent fires at most one market order per tick, as decided by its strategy.
type Agent struct {
	Label    string
	Strategy Strategy
	Prices   PriceResolver
	Sender   MarketSender
	Interval time.Duration
}

// Run ticks until ctx is cancelled. Each tick resolves the reference price,
// asks the strategy, and submits the decided order. Send failures are logged;
// the loop keeps going.
func (a *Agent) Run(ctx context.Context) {
	interval := a.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	log.Printf("[info] agent %s (%s) started, interval=%s", a.Label, a.Strategy.Name(), interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[info] agent %s stopped", a.Label)
			return
		case <-t.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) tick(ctx context.Context) {
	mid, ok := a.Prices.Resolve(ctx)
	if !ok {
		log.Printf("[warn] agent %s: no price this tick", a.Label)
		return
	}
	side, qty, ok := a.Strategy.Decide(mid)
	if !ok {
		return
	}
	if err := a.Sender.PlaceMarketOrder(ctx, side, qty); err != nil {
		log.Printf("[warn] agent %s: market %s %d: %v", a.Label, side, qty, err)
		return
	}
	log.Printf("[info] agent %s: market %s %d @ mid %d", a.Label, side, qty, mid)
}

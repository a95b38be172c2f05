// Package price resolves one reference price per reconciliation cycle from an
// ordered chain of providers: exchange top-of-book, streaming spot feed, REST
// spot feed, on-chain aggregator, then a static default. Sources fail
// independently; the first positive answer wins.
package price

import (
	"context"
	"log"
)

// Source produces an 8-decimal fixed-point reference price. A source returns
// an error when it has no usable answer (unreachable, empty book, stale data);
// the chain treats any error the same way and falls through.
type Source interface {
	Name() string
	MidPrice(ctx context.Context) (uint64, error)
}

// Chain queries sources in order and stops at the first positive value,
// falling back to the static default when every source fails. Static == 0
// disables the fallback, in which case Resolve can report no price at all.
type Chain struct {
	Sources []Source
	Static  uint64
}

// Resolve returns the reference price for this cycle. ok is false only when
// every source failed and no static default is configured; the caller then
// keeps the previous cycle's value.
func (c *Chain) Resolve(ctx context.Context) (uint64, bool) {
	for _, src := range c.Sources {
		p, err := src.MidPrice(ctx)
		if err != nil {
			log.Printf("[warn] price source %s: %v", src.Name(), err)
			continue
		}
		if p > 0 {
			return p, true
		}
	}
	if c.Static > 0 {
		return c.Static, true
	}
	return 0, false
}

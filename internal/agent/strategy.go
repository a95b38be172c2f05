// Package agent runs small directional traders that fire one market order per
// timer tick. Agents reuse the market maker's price chain and execution queue;
// only the decision policy differs.
package agent

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"strings"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

// Strategy turns the current reference price into at most one market order.
// ok is false when the strategy wants to sit this tick out. Implementations
// keep their own state and are called from a single goroutine.
type Strategy interface {
	Name() string
	Decide(mid uint64) (side exchange.Side, quantity uint64, ok bool)
}

// NewStrategy builds a strategy by config name.
func NewStrategy(name string, quantity uint64) (Strategy, error) {
	if quantity == 0 {
		return nil, fmt.Errorf("strategy quantity must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random":
		return &Random{Quantity: quantity}, nil
	case "momentum":
		return &Momentum{Quantity: quantity}, nil
	case "mean-reversion", "meanreversion":
		return &MeanReversion{Quantity: quantity, Window: 8}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// Random flips a coin every tick. Useful for generating flow on quiet books.
type Random struct {
	Quantity uint64

	// rng is swappable in tests; nil uses the shared global source.
	rng func() uint64
}

func (s *Random) Name() string { return "random" }

func (s *Random) Decide(mid uint64) (exchange.Side, uint64, bool) {
	if mid == 0 {
		return 0, 0, false
	}
	roll := s.rng
	if roll == nil {
		roll = rand.Uint64
	}
	if roll()%2 == 0 {
		return exchange.SideBuy, s.Quantity, true
	}
	return exchange.SideSell, s.Quantity, true
}

// Momentum follows the last move: buy after an uptick, sell after a downtick.
// The first tick and flat ticks produce no order.
type Momentum struct {
	Quantity uint64

	prev uint64
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) Decide(mid uint64) (exchange.Side, uint64, bool) {
	if mid == 0 {
		return 0, 0, false
	}
	prev := s.prev
	s.prev = mid
	if prev == 0 || mid == prev {
		return 0, 0, false
	}
	if mid > prev {
		return exchange.SideBuy, s.Quantity, true
	}
	return exchange.SideSell, s.Quantity, true
}

// MeanReversion fades the deviation from a short rolling mean: sell above it,
// buy below it. No order until the window is full or while price sits on the
// mean.
type MeanReversion struct {
	Quantity uint64
	Window   int

	samples []uint64
	next    int
	filled  bool
}

func (s *MeanReversion) Name() string { return "mean-reversion" }

func (s *MeanReversion) Decide(mid uint64) (exchange.Side, uint64, bool) {
	if mid == 0 {
		return 0, 0, false
	}
	if s.Window <= 0 {
		s.Window = 8
	}
	if s.samples == nil {
		s.samples = make([]uint64, s.Window)
	}

	var mean uint64
	if s.filled {
		sum := new(big.Int)
		for _, v := range s.samples {
			sum.Add(sum, new(big.Int).SetUint64(v))
		}
		mean = sum.Quo(sum, big.NewInt(int64(s.Window))).Uint64()
	}

	s.samples[s.next] = mid
	s.next++
	if s.next == s.Window {
		s.next = 0
		s.filled = true
	}

	if mean == 0 {
		return 0, 0, false
	}
	switch {
	case mid > mean:
		return exchange.SideSell, s.Quantity, true
	case mid < mean:
		return exchange.SideBuy, s.Quantity, true
	default:
		return 0, 0, false
	}
}

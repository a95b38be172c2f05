package agent

import (
	"testing"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

func TestNewStrategy(t *testing.T) {
	for _, name := range []string{"random", "momentum", "mean-reversion", "MeanReversion"} {
		s, err := NewStrategy(name, 1_000_000)
		if err != nil {
			t.Fatalf("NewStrategy(%q): %v", name, err)
		}
		if s.Name() == "" {
			t.Fatalf("NewStrategy(%q): empty name", name)
		}
	}
	if _, err := NewStrategy("martingale", 1); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
	if _, err := NewStrategy("random", 0); err == nil {
		t.Fatalf("expected error for zero quantity")
	}
}

func TestRandomUsesBothSides(t *testing.T) {
	var roll uint64
	s := &Random{Quantity: 7, rng: func() uint64 { roll++; return roll }}

	side1, qty, ok := s.Decide(100)
	if !ok || qty != 7 {
		t.Fatalf("Decide=(%v,%d,%v)", side1, qty, ok)
	}
	side2, _, _ := s.Decide(100)
	if side1 == side2 {
		t.Fatalf("consecutive rolls produced the same side %s", side1)
	}
	if _, _, ok := s.Decide(0); ok {
		t.Fatalf("zero mid must produce no order")
	}
}

func TestMomentumFollowsLastMove(t *testing.T) {
	s := &Momentum{Quantity: 3}

	if _, _, ok := s.Decide(100); ok {
		t.Fatalf("first tick has no prior move, expected no order")
	}
	side, qty, ok := s.Decide(110)
	if !ok || side != exchange.SideBuy || qty != 3 {
		t.Fatalf("uptick: got (%s,%d,%v) want (buy,3,true)", side, qty, ok)
	}
	side, _, ok = s.Decide(90)
	if !ok || side != exchange.SideSell {
		t.Fatalf("downtick: got (%s,%v) want (sell,true)", side, ok)
	}
	if _, _, ok := s.Decide(90); ok {
		t.Fatalf("flat tick must produce no order")
	}
}

func TestMeanReversionFadesTheMean(t *testing.T) {
	s := &MeanReversion{Quantity: 2, Window: 4}

	// Window not yet full: no orders.
	for _, mid := range []uint64{100, 100, 100, 100} {
		if _, _, ok := s.Decide(mid); ok {
			t.Fatalf("order before the window filled")
		}
	}

	// Mean is 100 now; above it sells, below it buys.
	side, qty, ok := s.Decide(120)
	if !ok || side != exchange.SideSell || qty != 2 {
		t.Fatalf("above mean: got (%s,%d,%v) want (sell,2,true)", side, qty, ok)
	}
	side, _, ok = s.Decide(50)
	if !ok || side != exchange.SideBuy {
		t.Fatalf("below mean: got (%s,%v) want (buy,true)", side, ok)
	}
}

func TestMeanReversionFlatOnMean(t *testing.T) {
	s := &MeanReversion{Quantity: 2, Window: 2}
	s.Decide(100)
	s.Decide(100)
	if _, _, ok := s.Decide(100); ok {
		t.Fatalf("price on the mean must produce no order")
	}
}

package maker

import (
	"testing"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

func TestPlanLadderSymmetric(t *testing.T) {
	p := LadderParams{SpreadBps: 20, StepBps: 10, Depth: 3, Quantity: 5_000_000, TickSize: 1}

	quotes, err := PlanLadder(200_000_000_000, p)
	if err != nil {
		t.Fatalf("PlanLadder: %v", err)
	}
	if len(quotes) != 6 {
		t.Fatalf("got %d quotes, want 6", len(quotes))
	}

	wantBuys := []uint64{199_600_000_000, 199_400_000_000, 199_200_000_000}
	wantSells := []uint64{200_400_000_000, 200_600_000_000, 200_800_000_000}
	for i, want := range wantBuys {
		q := quotes[i]
		if q.Side != exchange.SideBuy || q.Price != want || q.Quantity != 5_000_000 {
			t.Fatalf("buy rung %d = %+v, want price %d", i, q, want)
		}
	}
	for i, want := range wantSells {
		q := quotes[3+i]
		if q.Side != exchange.SideSell || q.Price != want {
			t.Fatalf("sell rung %d = %+v, want price %d", i, q, want)
		}
	}
}

func TestPlanSideTickTruncation(t *testing.T) {
	p := LadderParams{SpreadBps: 17, StepBps: 10, Depth: 1, Quantity: 1, TickSize: 100_000_000}

	// 200000000000 * 9983 / 10000 = 199660000000, already on grid.
	// 200000000001 * 9983 / 10000 = 199660000000.9983 -> floor -> grid floor.
	quotes, err := PlanSide(200_000_000_001, exchange.SideBuy, 0, 1, p)
	if err != nil {
		t.Fatalf("PlanSide: %v", err)
	}
	if got := quotes[0].Price; got != 199_600_000_000 {
		t.Fatalf("tick-truncated price=%d want 199600000000", got)
	}
	if got := quotes[0].Price % p.TickSize; got != 0 {
		t.Fatalf("price %d not on tick grid", quotes[0].Price)
	}
}

func TestPlanSideStartRungOffsets(t *testing.T) {
	p := LadderParams{SpreadBps: 20, StepBps: 10, Depth: 3, Quantity: 1, TickSize: 1}

	// Gap fill with 2 rungs already resting: the single new rung is rung 2.
	quotes, err := PlanSide(200_000_000_000, exchange.SideSell, 2, 1, p)
	if err != nil {
		t.Fatalf("PlanSide: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(quotes))
	}
	if quotes[0].Price != 200_800_000_000 {
		t.Fatalf("rung 2 price=%d want 200800000000", quotes[0].Price)
	}
}

func TestPlanSideRejectsBadParams(t *testing.T) {
	base := LadderParams{SpreadBps: 20, StepBps: 10, Depth: 3, Quantity: 1, TickSize: 1}

	bad := base
	bad.Depth = 0
	if _, err := PlanSide(1, exchange.SideBuy, 0, 1, bad); err == nil {
		t.Fatalf("expected error for zero depth")
	}

	bad = base
	bad.Quantity = 0
	if _, err := PlanSide(1, exchange.SideBuy, 0, 1, bad); err == nil {
		t.Fatalf("expected error for zero quantity")
	}

	bad = base
	bad.SpreadBps = 9_990
	bad.StepBps = 10
	if _, err := PlanSide(200_000_000_000, exchange.SideBuy, 0, 3, bad); err == nil {
		t.Fatalf("expected error for offsets reaching 100%%")
	}

	if _, err := PlanSide(0, exchange.SideBuy, 0, 1, base); err == nil {
		t.Fatalf("expected error for zero mid")
	}
}

func TestDeviationExceedsBoundary(t *testing.T) {
	const old = 200_000_000_000
	cases := []struct {
		name         string
		newMid       uint64
		thresholdBps uint64
		want         bool
	}{
		{name: "exactly at threshold", newMid: 210_000_000_000, thresholdBps: 500, want: false},
		{name: "one atom past threshold", newMid: 210_000_000_001, thresholdBps: 500, want: true},
		{name: "one atom short downward", newMid: 190_000_000_001, thresholdBps: 500, want: false},
		{name: "past threshold downward", newMid: 189_999_999_999, thresholdBps: 500, want: true},
		{name: "unchanged", newMid: old, thresholdBps: 0, want: false},
		{name: "any move with zero threshold", newMid: old + 1, thresholdBps: 0, want: true},
	}
	for _, tc := range cases {
		if got := DeviationExceeds(old, tc.newMid, tc.thresholdBps); got != tc.want {
			t.Fatalf("%s: DeviationExceeds(%d,%d,%d)=%v want %v", tc.name, old, tc.newMid, tc.thresholdBps, got, tc.want)
		}
	}

	if !DeviationExceeds(0, 1, 10_000) {
		t.Fatalf("zero oldMid must always count as exceeded")
	}
}

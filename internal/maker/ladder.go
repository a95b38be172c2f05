// Package maker maintains a symmetric quote ladder around a reference price.
// The engine decides per cycle between replacing the whole book and topping
// up missing rungs; the ladder math itself lives here.
package maker

import (
	"fmt"
	"math/big"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

const bpsDenominator = 10_000

// Quote is one rung of the ladder, ready to submit.
type Quote struct {
	Side     exchange.Side
	Price    uint64
	Quantity uint64
}

// LadderParams shapes one side-symmetric ladder. Offsets grow linearly:
// rung i sits spread + step*i basis points away from the reference price.
type LadderParams struct {
	SpreadBps uint64
	StepBps   uint64
	Depth     int
	Quantity  uint64
	TickSize  uint64
}

func (p LadderParams) validate() error {
	if p.Depth <= 0 {
		return fmt.Errorf("ladder depth must be positive, got %d", p.Depth)
	}
	if p.Quantity == 0 {
		return fmt.Errorf("ladder quantity must be positive")
	}
	if p.SpreadBps+p.StepBps*uint64(p.Depth-1) >= bpsDenominator {
		return fmt.Errorf("ladder offsets reach %d bps, bids would cross zero", p.SpreadBps+p.StepBps*uint64(p.Depth-1))
	}
	return nil
}

// PlanLadder builds the full two-sided ladder around mid: Depth buys below,
// Depth sells above, both starting at SpreadBps and widening by StepBps per
// rung. Buys come first in the result.
func PlanLadder(mid uint64, p LadderParams) ([]Quote, error) {
	buys, err := PlanSide(mid, exchange.SideBuy, 0, p.Depth, p)
	if err != nil {
		return nil, err
	}
	sells, err := PlanSide(mid, exchange.SideSell, 0, p.Depth, p)
	if err != nil {
		return nil, err
	}
	return append(buys, sells...), nil
}

// PlanSide builds count rungs for one side starting at rung index startRung.
// Gap-filling uses a nonzero startRung so that the new rungs sit beyond the
// ones already resting on the book.
func PlanSide(mid uint64, side exchange.Side, startRung, count int, p LadderParams) ([]Quote, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if mid == 0 {
		return nil, fmt.Errorf("reference price is zero")
	}
	if count <= 0 {
		return nil, nil
	}

	quotes := make([]Quote, 0, count)
	for i := startRung; i < startRung+count; i++ {
		offset := p.SpreadBps + p.StepBps*uint64(i)
		price, err := rungPrice(mid, side, offset, p.TickSize)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, Quote{Side: side, Price: price, Quantity: p.Quantity})
	}
	return quotes, nil
}

// rungPrice computes mid shifted by offset basis points away from the touch
// and truncated down to the tick grid. The multiply runs in big.Int so prices
// near the top of the uint64 range cannot wrap.
func rungPrice(mid uint64, side exchange.Side, offsetBps, tickSize uint64) (uint64, error) {
	if offsetBps >= bpsDenominator {
		return 0, fmt.Errorf("offset %d bps out of range", offsetBps)
	}
	factor := bpsDenominator - offsetBps
	if side == exchange.SideSell {
		factor = bpsDenominator + offsetBps
	}

	v := new(big.Int).SetUint64(mid)
	v.Mul(v, new(big.Int).SetUint64(factor))
	v.Quo(v, big.NewInt(bpsDenominator))

	if tickSize > 1 {
		rem := new(big.Int)
		v.QuoRem(v, new(big.Int).SetUint64(tickSize), rem)
		v.Mul(v, new(big.Int).SetUint64(tickSize))
	}
	if v.Sign() <= 0 {
		return 0, fmt.Errorf("rung price collapsed to zero (mid=%d offset=%dbps)", mid, offsetBps)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("rung price %s overflows uint64 (mid=%d offset=%dbps)", v, mid, offsetBps)
	}
	return v.Uint64(), nil
}

// DeviationExceeds reports whether newMid moved away from oldMid by strictly
// more than thresholdBps. The comparison cross-multiplies instead of dividing
// so the just-at-threshold case is classified exactly.
func DeviationExceeds(oldMid, newMid, thresholdBps uint64) bool {
	if oldMid == 0 {
		return true
	}
	var diff uint64
	if newMid > oldMid {
		diff = newMid - oldMid
	} else {
		diff = oldMid - newMid
	}
	// diff * 10000 > threshold * oldMid
	lhs := new(big.Int).SetUint64(diff)
	lhs.Mul(lhs, big.NewInt(bpsDenominator))
	rhs := new(big.Int).SetUint64(thresholdBps)
	rhs.Mul(rhs, new(big.Int).SetUint64(oldMid))
	return lhs.Cmp(rhs) > 0
}

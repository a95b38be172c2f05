package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// PriceDecimals is the exchange-native fixed-point scale for prices: every
// price in this codebase is an integer number of 1e-8 units.
const PriceDecimals = 8

// PriceScale is 10^PriceDecimals.
const PriceScale uint64 = 100_000_000

// Side of an order, exchange-native encoding (0=buy, 1=sell).
type Side uint8

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PoolKey identifies the traded instrument. Base/quote addresses and their
// decimals are fetched once at worker startup and immutable afterwards; a
// change requires a restart.
type PoolKey struct {
	Base  common.Address
	Quote common.Address

	BaseDecimals  uint8
	QuoteDecimals uint8
}

func (k PoolKey) String() string {
	return fmt.Sprintf("%s/%s", k.Base.Hex(), k.Quote.Hex())
}

// Order mirrors an exchange-side resting order. The exchange owns the truth;
// this copy is allowed to be stale for at most one reconciliation cycle.
type Order struct {
	Side     Side
	ID       uint64
	Price    uint64 // 8-decimal fixed point
	Quantity uint64 // base-asset units
}

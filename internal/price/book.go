package price

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

// BestPriceReader is the slice of the exchange contract this source consumes.
type BestPriceReader interface {
	GetBestPrice(ctx context.Context, base, quote common.Address, side exchange.Side) (price, volume uint64, err error)
}

// Book derives the mid from the exchange's own top of book. First in the
// chain: when the book is two-sided it is the truest signal, and it costs two
// reads against a node we already talk to.
type Book struct {
	Reader BestPriceReader
	Base   common.Address
	Quote  common.Address
}

func (b *Book) Name() string { return "book" }

func (b *Book) MidPrice(ctx context.Context) (uint64, error) {
	bid, _, err := b.Reader.GetBestPrice(ctx, b.Base, b.Quote, exchange.SideBuy)
	if err != nil {
		return 0, err
	}
	ask, _, err := b.Reader.GetBestPrice(ctx, b.Base, b.Quote, exchange.SideSell)
	if err != nil {
		return 0, err
	}
	if bid == 0 || ask == 0 {
		return 0, fmt.Errorf("book is one-sided (bid=%d ask=%d)", bid, ask)
	}
	// Midpoint, written to avoid overflowing the sum.
	return bid/2 + ask/2 + (bid%2+ask%2)/2, nil
}

package price

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

var (
	feedLatestRoundSelector = crypto.Keccak256([]byte("latestRoundData()"))[:4]
	feedDecimalsSelector    = crypto.Keccak256([]byte("decimals()"))[:4]
)

// DefaultFeedMaxAge rejects aggregator answers older than one hour.
const DefaultFeedMaxAge = time.Hour

// FeedCaller is the slice of the chain client the aggregator source consumes.
type FeedCaller interface {
	ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Feed reads a Chainlink-style price aggregator. The answer is rescaled from
// the feed's own decimals to exchange fixed point and rejected when updatedAt
// lags the wall clock by more than MaxAge.
type Feed struct {
	Caller  FeedCaller
	Address common.Address
	MaxAge  time.Duration

	// now is swappable in tests.
	now func() time.Time

	// Sources are consulted concurrently by the maker and the agents.
	mu          sync.Mutex
	decimals    uint8
	decimalsSet bool
}

func (f *Feed) Name() string { return "feed" }

func (f *Feed) MidPrice(ctx context.Context) (uint64, error) {
	if f.Address == (common.Address{}) {
		return 0, fmt.Errorf("aggregator address not configured")
	}

	dec, err := f.feedDecimals(ctx)
	if err != nil {
		return 0, err
	}

	out, err := f.Caller.ReadContract(ctx, f.Address, feedLatestRoundSelector)
	if err != nil {
		return 0, fmt.Errorf("latestRoundData(%s): %w", f.Address.Hex(), err)
	}
	// roundId, answer, startedAt, updatedAt, answeredInRound
	if len(out) < 5*32 {
		return 0, fmt.Errorf("latestRoundData(%s): short result (%d bytes)", f.Address.Hex(), len(out))
	}
	answer := new(big.Int).SetBytes(out[32:64])
	updatedAt := new(big.Int).SetBytes(out[96:128])

	if answer.Sign() <= 0 {
		return 0, fmt.Errorf("aggregator answer %s is not positive", answer)
	}
	if !updatedAt.IsInt64() {
		return 0, fmt.Errorf("aggregator updatedAt %s out of range", updatedAt)
	}

	maxAge := f.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultFeedMaxAge
	}
	nowFn := f.now
	if nowFn == nil {
		nowFn = time.Now
	}
	age := nowFn().Sub(time.Unix(updatedAt.Int64(), 0))
	if age > maxAge {
		return 0, fmt.Errorf("aggregator answer is stale (updated %s ago)", age.Truncate(time.Second))
	}

	return rescaleToPriceScale(answer, dec)
}

func (f *Feed) feedDecimals(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decimalsSet {
		return f.decimals, nil
	}
	out, err := f.Caller.ReadContract(ctx, f.Address, feedDecimalsSelector)
	if err != nil {
		return 0, fmt.Errorf("feed decimals(%s): %w", f.Address.Hex(), err)
	}
	v := new(big.Int).SetBytes(out)
	if !v.IsUint64() || v.Uint64() > 77 {
		return 0, fmt.Errorf("feed decimals(%s): implausible value %s", f.Address.Hex(), v)
	}
	f.decimals = uint8(v.Uint64())
	f.decimalsSet = true
	return f.decimals, nil
}

// rescaleToPriceScale converts a positive value carrying fromDecimals into
// the exchange's 8-decimal fixed point, truncating when scaling down.
func rescaleToPriceScale(v *big.Int, fromDecimals uint8) (uint64, error) {
	scaled := new(big.Int).Set(v)
	switch {
	case fromDecimals < exchange.PriceDecimals:
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exchange.PriceDecimals-fromDecimals)), nil)
		scaled.Mul(scaled, shift)
	case fromDecimals > exchange.PriceDecimals:
		shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fromDecimals-exchange.PriceDecimals)), nil)
		scaled.Quo(scaled, shift)
	}
	if !scaled.IsUint64() {
		return 0, fmt.Errorf("rescaled price %s overflows fixed-point range", scaled)
	}
	return scaled.Uint64(), nil
}

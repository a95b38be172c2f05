package exchange

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ReadCaller is the slice of the chain client the exchange wrappers consume.
type ReadCaller interface {
	ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// clobABIJSON covers the router's call surface. Orders are plain contract
// transactions: placement and cancellation calldata is built here and signed/
// sent by the execution queue.
const clobABIJSON = `[
  {"type":"function","name":"getPool","stateMutability":"view","inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"}],"outputs":[{"name":"orderBook","type":"address"}]},
  {"type":"function","name":"getBestPrice","stateMutability":"view","inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"},{"name":"side","type":"uint8"}],"outputs":[{"name":"price","type":"uint256"},{"name":"volume","type":"uint256"}]},
  {"type":"function","name":"getUserActiveOrders","stateMutability":"view","inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"},{"name":"user","type":"address"}],"outputs":[{"name":"orders","type":"tuple[]","components":[{"name":"side","type":"uint8"},{"name":"id","type":"uint256"},{"name":"price","type":"uint256"},{"name":"quantity","type":"uint256"}]}]},
  {"type":"function","name":"placeOrderWithDeposit","stateMutability":"nonpayable","inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"},{"name":"price","type":"uint256"},{"name":"quantity","type":"uint256"},{"name":"side","type":"uint8"},{"name":"user","type":"address"}],"outputs":[{"name":"orderId","type":"uint256"}]},
  {"type":"function","name":"placeMarketOrderWithDeposit","stateMutability":"nonpayable","inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"},{"name":"quantity","type":"uint256"},{"name":"side","type":"uint8"},{"name":"user","type":"address"}],"outputs":[{"name":"orderId","type":"uint256"}]},
  {"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"},{"name":"orderId","type":"uint256"}],"outputs":[{"name":"success","type":"bool"}]}
]`

var clobABI = mustParseABI(clobABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("exchange: parse abi: %v", err))
	}
	return parsed
}

// Contract wraps the CLOB router at a fixed address.
type Contract struct {
	caller  ReadCaller
	address common.Address
}

func NewContract(caller ReadCaller, address common.Address) (*Contract, error) {
	if (address == common.Address{}) {
		return nil, fmt.Errorf("exchange router address required")
	}
	return &Contract{caller: caller, address: address}, nil
}

func (c *Contract) Address() common.Address { return c.address }

// GetPool resolves the order-book address for base/quote. A zero address means
// the pool does not exist; callers treat that as a fatal init failure.
func (c *Contract) GetPool(ctx context.Context, base, quote common.Address) (common.Address, error) {
	data, err := clobABI.Pack("getPool", base, quote)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPool: %w", err)
	}
	out, err := c.caller.ReadContract(ctx, c.address, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("getPool(%s,%s): %w", base.Hex(), quote.Hex(), err)
	}
	vals, err := clobABI.Unpack("getPool", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode getPool: %w", err)
	}
	book, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode getPool: unexpected type %T", vals[0])
	}
	return book, nil
}

// GetBestPrice returns the top-of-book price and resting volume for one side.
// A zero price means that side of the book is empty.
func (c *Contract) GetBestPrice(ctx context.Context, base, quote common.Address, side Side) (price, volume uint64, err error) {
	data, err := clobABI.Pack("getBestPrice", base, quote, uint8(side))
	if err != nil {
		return 0, 0, fmt.Errorf("pack getBestPrice: %w", err)
	}
	out, err := c.caller.ReadContract(ctx, c.address, data)
	if err != nil {
		return 0, 0, fmt.Errorf("getBestPrice(%s): %w", side, err)
	}
	vals, err := clobABI.Unpack("getBestPrice", out)
	if err != nil {
		return 0, 0, fmt.Errorf("decode getBestPrice: %w", err)
	}
	price, err = uint64FromBig(vals[0], "best price")
	if err != nil {
		return 0, 0, err
	}
	volume, err = uint64FromBig(vals[1], "best volume")
	if err != nil {
		return 0, 0, err
	}
	return price, volume, nil
}

// GetUserActiveOrders lists the account's open (or partially filled) orders on
// this instrument.
func (c *Contract) GetUserActiveOrders(ctx context.Context, base, quote, user common.Address) ([]Order, error) {
	data, err := clobABI.Pack("getUserActiveOrders", base, quote, user)
	if err != nil {
		return nil, fmt.Errorf("pack getUserActiveOrders: %w", err)
	}
	out, err := c.caller.ReadContract(ctx, c.address, data)
	if err != nil {
		return nil, fmt.Errorf("getUserActiveOrders(%s): %w", user.Hex(), err)
	}
	vals, err := clobABI.Unpack("getUserActiveOrders", out)
	if err != nil {
		return nil, fmt.Errorf("decode getUserActiveOrders: %w", err)
	}

	raw, ok := vals[0].([]struct {
		Side     uint8    `json:"side"`
		Id       *big.Int `json:"id"`
		Price    *big.Int `json:"price"`
		Quantity *big.Int `json:"quantity"`
	})
	if !ok {
		return nil, fmt.Errorf("decode getUserActiveOrders: unexpected type %T", vals[0])
	}

	orders := make([]Order, 0, len(raw))
	for i, r := range raw {
		id, err := uint64FromBig(r.Id, fmt.Sprintf("order[%d].id", i))
		if err != nil {
			return nil, err
		}
		price, err := uint64FromBig(r.Price, fmt.Sprintf("order[%d].price", i))
		if err != nil {
			return nil, err
		}
		qty, err := uint64FromBig(r.Quantity, fmt.Sprintf("order[%d].quantity", i))
		if err != nil {
			return nil, err
		}
		orders = append(orders, Order{Side: Side(r.Side), ID: id, Price: price, Quantity: qty})
	}
	return orders, nil
}

// PlaceOrderCalldata builds the calldata for a resting limit order with an
// inline deposit of the required funds.
func (c *Contract) PlaceOrderCalldata(base, quote common.Address, price, quantity uint64, side Side, user common.Address) ([]byte, error) {
	if price == 0 || quantity == 0 {
		return nil, fmt.Errorf("place order: price and quantity must be positive (price=%d qty=%d)", price, quantity)
	}
	data, err := clobABI.Pack("placeOrderWithDeposit",
		base, quote,
		new(big.Int).SetUint64(price), new(big.Int).SetUint64(quantity),
		uint8(side), user,
	)
	if err != nil {
		return nil, fmt.Errorf("pack placeOrderWithDeposit: %w", err)
	}
	return data, nil
}

// PlaceMarketOrderCalldata builds the calldata for an immediate-execution
// order with an inline deposit.
func (c *Contract) PlaceMarketOrderCalldata(base, quote common.Address, quantity uint64, side Side, user common.Address) ([]byte, error) {
	if quantity == 0 {
		return nil, fmt.Errorf("place market order: quantity must be positive")
	}
	data, err := clobABI.Pack("placeMarketOrderWithDeposit",
		base, quote,
		new(big.Int).SetUint64(quantity),
		uint8(side), user,
	)
	if err != nil {
		return nil, fmt.Errorf("pack placeMarketOrderWithDeposit: %w", err)
	}
	return data, nil
}

// CancelOrderCalldata builds the calldata to cancel one resting order by id.
func (c *Contract) CancelOrderCalldata(base, quote common.Address, orderID uint64) ([]byte, error) {
	data, err := clobABI.Pack("cancelOrder", base, quote, new(big.Int).SetUint64(orderID))
	if err != nil {
		return nil, fmt.Errorf("pack cancelOrder: %w", err)
	}
	return data, nil
}

func uint64FromBig(v any, what string) (uint64, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("decode %s: unexpected type %T", what, v)
	}
	if b == nil || b.Sign() < 0 {
		return 0, fmt.Errorf("decode %s: negative or missing value", what)
	}
	if !b.IsUint64() {
		return 0, fmt.Errorf("decode %s: %s overflows uint64", what, b.String())
	}
	return b.Uint64(), nil
}

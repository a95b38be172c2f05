package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC-20 selectors, precomputed the cheap way. The token surface is small
// enough that raw calldata beats dragging in another ABI blob.
var (
	erc20DecimalsSelector  = crypto.Keccak256([]byte("decimals()"))[:4]
	erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	erc20AllowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	erc20ApproveSelector   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	erc20MintSelector      = crypto.Keccak256([]byte("mint(address,uint256)"))[:4]
)

// Token wraps one ERC-20 contract for the reads the bot needs and the
// calldata the setup tool sends.
type Token struct {
	caller  ReadCaller
	address common.Address
}

func NewToken(caller ReadCaller, address common.Address) *Token {
	return &Token{caller: caller, address: address}
}

func (t *Token) Address() common.Address { return t.address }

// Decimals reads the token's decimal precision. Read once at startup and
// cached in the PoolKey.
func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.caller.ReadContract(ctx, t.address, erc20DecimalsSelector)
	if err != nil {
		return 0, fmt.Errorf("decimals(%s): %w", t.address.Hex(), err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals(%s): empty result", t.address.Hex())
	}
	v := new(big.Int).SetBytes(out)
	if !v.IsUint64() || v.Uint64() > 77 {
		return 0, fmt.Errorf("decimals(%s): implausible value %s", t.address.Hex(), v.String())
	}
	return uint8(v.Uint64()), nil
}

// BalanceOf reads owner's token balance in native token units.
func (t *Token) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	out, err := t.caller.ReadContract(ctx, t.address, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", owner.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf(%s): empty result", owner.Hex())
	}
	return new(big.Int).SetBytes(out), nil
}

// Allowance reads how much spender may pull from owner.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20AllowanceSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)

	out, err := t.caller.ReadContract(ctx, t.address, data)
	if err != nil {
		return nil, fmt.Errorf("allowance(%s,%s): %w", owner.Hex(), spender.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("allowance(%s,%s): empty result", owner.Hex(), spender.Hex())
	}
	return new(big.Int).SetBytes(out), nil
}

// ApproveCalldata builds approve(spender, amount) calldata for the execution
// queue to sign and send.
func (t *Token) ApproveCalldata(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20ApproveSelector...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// MintCalldata builds mint(to, amount) calldata. Testnet faucet tokens only.
func (t *Token) MintCalldata(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+32+32)
	data = append(data, erc20MintSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}

// MaxUint256 is the conventional "unlimited" allowance.
func MaxUint256() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}

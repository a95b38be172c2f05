package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// fallbackGasLimit is used when eth_estimateGas fails. Generous enough for a
// place-with-deposit call, cheap enough not to matter for reads.
const fallbackGasLimit = 1_200_000

// Client wraps an ethclient connection with one signing key. It exposes the
// narrow read/write surface the rest of the bot consumes; nonce assignment is
// the ExecQueue's job, so WriteContract takes the nonce as an argument.
type Client struct {
	rpc     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	signer  types.Signer
}

// Dial connects to an EVM RPC endpoint and binds the signing key. The URL must
// be ws(s):// or http(s)://.
func Dial(ctx context.Context, rpcURL string, chainID int64, key *ecdsa.PrivateKey) (*Client, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url required (set RPC_URL in .env)")
	}
	if !strings.HasPrefix(rpcURL, "ws") && !strings.HasPrefix(rpcURL, "http") {
		return nil, fmt.Errorf("rpc url must be ws(s)://... or http(s)://..., got %q", rpcURL)
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("chain id must be positive, got %d", chainID)
	}

	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	c := &Client{
		rpc:     rpc,
		chainID: big.NewInt(chainID),
	}
	if key != nil {
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
		c.signer = types.LatestSignerForChainID(c.chainID)
	}
	return c, nil
}

func (c *Client) Close() { c.rpc.Close() }

// From returns the signing account address (zero address for a read-only client).
func (c *Client) From() common.Address { return c.from }

func (c *Client) ChainID() int64 { return c.chainID.Int64() }

// ReadContract performs an eth_call against to with prebuilt calldata.
func (c *Client) ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", to.Hex(), err)
	}
	return out, nil
}

// WriteContract signs and broadcasts one transaction carrying data to the
// target contract, using the nonce assigned by the caller (the ExecQueue).
func (c *Client) WriteContract(ctx context.Context, to common.Address, data []byte, nonce uint64) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, fmt.Errorf("client has no signing key")
	}

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.from,
		To:       &to,
		GasPrice: gasPrice,
		Data:     data,
	})
	if err != nil {
		// Estimation can fail transiently on congested nodes; the fallback
		// limit keeps the send alive and the node rejects truly bad calls.
		gasLimit = fallbackGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx (nonce=%d): %w", nonce, err)
	}
	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx (nonce=%d): %w", nonce, err)
	}
	return signed.Hash(), nil
}

// PendingNonce returns the account's transaction count including pending txs.
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	n, err := c.rpc.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("pending nonce %s: %w", account.Hex(), err)
	}
	return n, nil
}

// Balance returns the account's native balance at the latest block.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.rpc.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", account.Hex(), err)
	}
	return bal, nil
}

// ParsePrivateKey decodes a hex-encoded secp256k1 key, with or without the 0x
// prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("private key missing")
	}
	hexKey = strings.TrimPrefix(hexKey, "0x")
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return pk, nil
}

// Command setup prepares accounts for trading: it checks each account's
// token allowances toward the CLOB router, approves where needed, and can
// mint testnet tokens. Run once before starting the bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Great-Trading-eXperience/barista-bot/internal/chain"
	"github.com/Great-Trading-eXperience/barista-bot/internal/config"
	"github.com/Great-Trading-eXperience/barista-bot/internal/dotenv"
	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

type args struct {
	configPath string
	mint       string
}

func parseArgs() args {
	var a args
	flag.StringVar(&a.configPath, "config", "./bot.yaml", "path to the YAML config file")
	flag.StringVar(&a.mint, "mint", "", "mint this many token units of base and quote to each account (testnet only)")
	flag.Parse()
	return a
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed := parseArgs()
	cfg, err := config.Load(parsed.configPath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	var mintAmount *big.Int
	if parsed.mint != "" {
		v, ok := new(big.Int).SetString(parsed.mint, 10)
		if !ok || v.Sign() <= 0 {
			log.Fatalf("[fatal] -mint %q is not a positive integer", parsed.mint)
		}
		mintAmount = v
	}

	ctx := context.Background()
	router := cfg.Exchange.CLOBAddress()
	tokens := []common.Address{cfg.Market.BaseAddress(), cfg.Market.QuoteAddress()}

	for _, acct := range cfg.Accounts {
		if err := setupAccount(ctx, cfg, acct, router, tokens, mintAmount); err != nil {
			log.Fatalf("[fatal] account %s: %v", acct.Name, err)
		}
	}
	log.Printf("[info] setup complete for %d account(s)", len(cfg.Accounts))
}

func setupAccount(ctx context.Context, cfg config.Snapshot, acct config.Account, router common.Address, tokens []common.Address, mintAmount *big.Int) error {
	key, err := chain.ParsePrivateKey(acct.PrivateKey)
	if err != nil {
		return err
	}
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, key)
	if err != nil {
		return err
	}
	defer client.Close()

	queue := chain.NewExecQueue(ctx, client.From(), client, nil, chain.QueueOptions{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase.Std(),
		ResyncEvery: cfg.Queue.ResyncEvery,
		ResyncDelay: cfg.Queue.ResyncDelay.Std(),
	})
	defer queue.Close()

	log.Printf("[info] account %s (%s)", acct.Name, client.From().Hex())

	// Approvals below half of MaxUint256 get topped up to unlimited.
	threshold := new(big.Int).Rsh(exchange.MaxUint256(), 1)

	for _, addr := range tokens {
		tok := exchange.NewToken(client, addr)

		if mintAmount != nil {
			hash, err := queue.SubmitWait(ctx, "mint", func(ctx context.Context, nonce uint64) (common.Hash, error) {
				return client.WriteContract(ctx, addr, tok.MintCalldata(client.From(), mintAmount), nonce)
			})
			if err != nil {
				return fmt.Errorf("mint %s: %w", addr.Hex(), err)
			}
			log.Printf("[info]   minted %s units of %s (tx=%s)", mintAmount, addr.Hex(), hash.Hex())
		}

		allowance, err := tok.Allowance(ctx, client.From(), router)
		if err != nil {
			return err
		}
		if allowance.Cmp(threshold) >= 0 {
			log.Printf("[info]   %s allowance already unlimited", addr.Hex())
			continue
		}

		hash, err := queue.SubmitWait(ctx, "approve", func(ctx context.Context, nonce uint64) (common.Hash, error) {
			return client.WriteContract(ctx, addr, tok.ApproveCalldata(router, exchange.MaxUint256()), nonce)
		})
		if err != nil {
			return fmt.Errorf("approve %s: %w", addr.Hex(), err)
		}
		log.Printf("[info]   approved %s for router %s (tx=%s)", addr.Hex(), router.Hex(), hash.Hex())
	}
	return nil
}

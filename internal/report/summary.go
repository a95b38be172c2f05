// Package report periodically writes a per-account balance summary to the
// log and the JSONL event stream.
package report

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
	"github.com/Great-Trading-eXperience/barista-bot/internal/jsonl"
)

// Caller is the chain surface the reporter reads balances through.
type Caller interface {
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Subject is one account the reporter covers.
type Subject struct {
	Name    string
	Account common.Address

	// LastMid reports the account's current price anchor; nil is allowed.
	LastMid func() uint64
}

type summaryEvent struct {
	Type    string `json:"type"`
	TS      string `json:"ts"`
	Worker  string `json:"worker"`
	Account string `json:"account"`
	Native  string `json:"native_wei"`
	Base    string `json:"base_balance"`
	Quote   string `json:"quote_balance"`
	LastMid uint64 `json:"last_mid,omitempty"`
}

// Reporter logs native and token balances for each subject on a timer.
type Reporter struct {
	Client   Caller
	Base     common.Address
	Quote    common.Address
	Subjects []Subject
	Events   *jsonl.Writer
	Interval time.Duration
}

// Run emits one summary immediately, then one per interval until ctx ends.
func (r *Reporter) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	r.emit(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.emit(ctx)
		}
	}
}

func (r *Reporter) emit(ctx context.Context) {
	baseTok := exchange.NewToken(r.Client, r.Base)
	quoteTok := exchange.NewToken(r.Client, r.Quote)

	for _, s := range r.Subjects {
		native, err := r.Client.Balance(ctx, s.Account)
		if err != nil {
			log.Printf("[warn] report %s: native balance: %v", s.Name, err)
			continue
		}
		baseBal, err := baseTok.BalanceOf(ctx, s.Account)
		if err != nil {
			log.Printf("[warn] report %s: base balance: %v", s.Name, err)
			continue
		}
		quoteBal, err := quoteTok.BalanceOf(ctx, s.Account)
		if err != nil {
			log.Printf("[warn] report %s: quote balance: %v", s.Name, err)
			continue
		}

		var mid uint64
		if s.LastMid != nil {
			mid = s.LastMid()
		}
		log.Printf("[info] summary %s: native=%s base=%s quote=%s mid=%d",
			s.Name, native, baseBal, quoteBal, mid)

		if r.Events != nil {
			ev := summaryEvent{
				Type:    "summary",
				TS:      time.Now().UTC().Format(time.RFC3339),
				Worker:  s.Name,
				Account: s.Account.Hex(),
				Native:  native.String(),
				Base:    baseBal.String(),
				Quote:   quoteBal.String(),
				LastMid: mid,
			}
			if err := r.Events.Write(ev); err != nil {
				log.Printf("[warn] report %s: jsonl: %v", s.Name, err)
			}
		}
	}
}

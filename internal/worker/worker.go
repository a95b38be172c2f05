// Package worker runs one trading account end to end: its execution queue,
// market-making engine, and trading agents all hang off a single Worker.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Great-Trading-eXperience/barista-bot/internal/agent"
	"github.com/Great-Trading-eXperience/barista-bot/internal/chain"
	"github.com/Great-Trading-eXperience/barista-bot/internal/config"
	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
	"github.com/Great-Trading-eXperience/barista-bot/internal/jsonl"
	"github.com/Great-Trading-eXperience/barista-bot/internal/maker"
	"github.com/Great-Trading-eXperience/barista-bot/internal/price"
)

// Client is the chain surface a worker needs; satisfied by chain.Client.
type Client interface {
	From() common.Address
	ReadContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	WriteContract(ctx context.Context, to common.Address, data []byte, nonce uint64) (common.Hash, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
}

// Worker drives one account: a reconciliation ticker for the maker ladder and
// one ticker per trading agent, all submitting through a shared ExecQueue.
type Worker struct {
	Name string

	client   Client
	contract *exchange.Contract
	queue    *chain.ExecQueue
	journal  chain.Journal

	cfg   config.Snapshot
	pool  exchange.PoolKey
	base  common.Address
	quote common.Address

	prices *price.Chain
	stream *price.Stream
	engine *maker.Engine
	agents []*agent.Agent

	// queueCancel stops the queue's own context, which outlives the run
	// context so shutdown cancels can still be submitted.
	queueCancel context.CancelFunc

	events *jsonl.Writer
}

// SetEvents mirrors reconciliation decisions into the JSONL event log. Call
// before Init.
func (w *Worker) SetEvents(events *jsonl.Writer) { w.events = events }

type cycleEvent struct {
	TsMs      int64  `json:"ts_ms"`
	Event     string `json:"event"`
	Worker    string `json:"worker"`
	Decision  string `json:"decision"`
	Mid       uint64 `json:"mid"`
	Cancelled int    `json:"cancelled,omitempty"`
	Placed    int    `json:"placed,omitempty"`
}

// New wires a worker for one account. Init must run before Run.
func New(name string, cfg config.Snapshot, client Client, journal chain.Journal) (*Worker, error) {
	contract, err := exchange.NewContract(client, cfg.Exchange.CLOBAddress())
	if err != nil {
		return nil, err
	}
	return &Worker{
		Name:     name,
		client:   client,
		contract: contract,
		journal:  journal,
		cfg:      cfg,
		base:     cfg.Market.BaseAddress(),
		quote:    cfg.Market.QuoteAddress(),
	}, nil
}

// Init resolves the pool and caches token decimals. Any failure here is fatal
// to the worker: the orchestrator logs it and never starts the tickers.
func (w *Worker) Init(ctx context.Context) error {
	book, err := w.contract.GetPool(ctx, w.base, w.quote)
	if err != nil {
		return fmt.Errorf("worker %s: %w", w.Name, err)
	}
	if (book == common.Address{}) {
		return fmt.Errorf("worker %s: no pool for %s/%s", w.Name, w.base.Hex(), w.quote.Hex())
	}

	baseDec, err := exchange.NewToken(w.client, w.base).Decimals(ctx)
	if err != nil {
		return fmt.Errorf("worker %s: %w", w.Name, err)
	}
	quoteDec, err := exchange.NewToken(w.client, w.quote).Decimals(ctx)
	if err != nil {
		return fmt.Errorf("worker %s: %w", w.Name, err)
	}
	w.pool = exchange.PoolKey{
		Base: w.base, Quote: w.quote,
		BaseDecimals: baseDec, QuoteDecimals: quoteDec,
	}
	log.Printf("[info] worker %s: pool %s (base decimals=%d quote decimals=%d)",
		w.Name, book.Hex(), baseDec, quoteDec)

	queueCtx, queueCancel := context.WithCancel(context.Background())
	w.queueCancel = queueCancel
	w.queue = chain.NewExecQueue(queueCtx, w.client.From(), w.client, w.journal, chain.QueueOptions{
		MaxAttempts: w.cfg.Queue.MaxAttempts,
		BackoffBase: w.cfg.Queue.BackoffBase.Std(),
		ResyncEvery: w.cfg.Queue.ResyncEvery,
		ResyncDelay: w.cfg.Queue.ResyncDelay.Std(),
	})

	w.prices = w.buildPriceChain()
	if w.stream != nil {
		w.stream.Start(ctx)
	}

	w.engine = maker.NewEngine(w.client.From(), w.base, w.quote, w.contract, w.prices, w, makerConfig(w.cfg))
	if w.events != nil {
		w.engine.SetObserver(func(ev maker.CycleEvent) {
			rec := cycleEvent{
				TsMs:      time.Now().UnixMilli(),
				Event:     "cycle",
				Worker:    w.Name,
				Decision:  ev.Decision,
				Mid:       ev.Mid,
				Cancelled: ev.Cancelled,
				Placed:    ev.Placed,
			}
			if err := w.events.Write(rec); err != nil {
				log.Printf("[warn] worker %s: event log: %v", w.Name, err)
			}
		})
	}

	for _, ac := range w.cfg.Agents {
		strat, err := agent.NewStrategy(ac.Strategy, ac.Quantity)
		if err != nil {
			return fmt.Errorf("worker %s: agent %s: %w", w.Name, ac.Label, err)
		}
		w.agents = append(w.agents, &agent.Agent{
			Label:    ac.Label,
			Strategy: strat,
			Prices:   w.prices,
			Sender:   w,
			Interval: ac.Interval.Std(),
		})
	}
	return nil
}

func (w *Worker) buildPriceChain() *price.Chain {
	c := &price.Chain{}
	c.Sources = append(c.Sources, &price.Book{Reader: w.contract, Base: w.base, Quote: w.quote})
	if w.cfg.Price.StreamURL != "" {
		w.stream = &price.Stream{URL: w.cfg.Price.StreamURL, Symbol: w.cfg.Price.Symbol}
		c.Sources = append(c.Sources, w.stream)
	}
	if w.cfg.Price.RESTURL != "" {
		c.Sources = append(c.Sources, &price.REST{URL: w.cfg.Price.RESTURL, Symbol: w.cfg.Price.Symbol})
	}
	if w.cfg.Price.Feed != "" {
		c.Sources = append(c.Sources, &price.Feed{Caller: w.client, Address: w.cfg.Price.FeedAddress()})
	}
	if w.cfg.Price.Static != "" {
		static, err := price.ParseDecimalPrice(w.cfg.Price.Static)
		if err != nil {
			log.Printf("[warn] worker %s: static price %q: %v", w.Name, w.cfg.Price.Static, err)
		} else {
			c.Static = static
		}
	}
	return c
}

func makerConfig(cfg config.Snapshot) maker.Config {
	return maker.Config{
		Ladder: maker.LadderParams{
			SpreadBps: cfg.Maker.SpreadBps,
			StepBps:   cfg.Maker.StepBps,
			Depth:     cfg.Maker.Depth,
			Quantity:  cfg.Maker.Quantity,
			TickSize:  cfg.Market.TickSize,
		},
		DeviationBps: cfg.Maker.DeviationBps,
	}
}

// Update delivers a new config snapshot. Only maker tunables apply live;
// market, chain, and agent changes need a restart, so the snapshot held from
// construction stays in place.
func (w *Worker) Update(cfg config.Snapshot) {
	w.engine.Update(makerConfig(cfg))
}

// Run ticks the reconciliation engine and the agents until ctx is cancelled,
// then shuts the account down: cancel-all pass, drain the queue, close it.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, a := range w.agents {
		wg.Add(1)
		go func(a *agent.Agent) {
			defer wg.Done()
			a.Run(ctx)
		}(a)
	}

	t := time.NewTicker(w.cfg.Maker.Interval.Std())
	defer t.Stop()

	log.Printf("[info] worker %s: reconciling every %s", w.Name, w.cfg.Maker.Interval.Std())
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			w.shutdown()
			return
		case <-t.C:
			if err := w.engine.RunCycle(ctx); err != nil {
				log.Printf("[warn] worker %s: reconcile: %v", w.Name, err)
			}
		}
	}
}

// shutdown makes one best-effort pass to pull our quotes, then closes the
// queue so in-flight sends finish. Runs on a fresh context because the run
// context is already cancelled.
func (w *Worker) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	active, err := w.contract.GetUserActiveOrders(ctx, w.base, w.quote, w.client.From())
	if err != nil {
		log.Printf("[warn] worker %s: shutdown order read: %v", w.Name, err)
	}
	for _, o := range active {
		if err := w.CancelOrder(ctx, o.ID); err != nil {
			log.Printf("[warn] worker %s: shutdown cancel %d: %v", w.Name, o.ID, err)
		}
	}
	w.queue.Close()
	w.queueCancel()
	log.Printf("[info] worker %s: stopped (cancelled %d resting orders)", w.Name, len(active))
}

// PlaceOrder satisfies maker.OrderSender: one resting limit order through the
// execution queue.
func (w *Worker) PlaceOrder(ctx context.Context, q maker.Quote) error {
	data, err := w.contract.PlaceOrderCalldata(w.base, w.quote, q.Price, q.Quantity, q.Side, w.client.From())
	if err != nil {
		return err
	}
	_, err = w.queue.SubmitWait(ctx, "place", w.writeFactory(data))
	return err
}

// PlaceMarketOrder satisfies agent.MarketSender.
func (w *Worker) PlaceMarketOrder(ctx context.Context, side exchange.Side, quantity uint64) error {
	data, err := w.contract.PlaceMarketOrderCalldata(w.base, w.quote, quantity, side, w.client.From())
	if err != nil {
		return err
	}
	_, err = w.queue.SubmitWait(ctx, "market", w.writeFactory(data))
	return err
}

// CancelOrder satisfies maker.OrderSender.
func (w *Worker) CancelOrder(ctx context.Context, id uint64) error {
	data, err := w.contract.CancelOrderCalldata(w.base, w.quote, id)
	if err != nil {
		return err
	}
	_, err = w.queue.SubmitWait(ctx, "cancel", w.writeFactory(data))
	return err
}

func (w *Worker) writeFactory(data []byte) chain.TxFactory {
	return func(ctx context.Context, nonce uint64) (common.Hash, error) {
		return w.client.WriteContract(ctx, w.contract.Address(), data, nonce)
	}
}

// Pool reports the resolved instrument; valid after Init.
func (w *Worker) Pool() exchange.PoolKey { return w.pool }

// LastMid exposes the engine anchor for the reporter.
func (w *Worker) LastMid() uint64 { return w.engine.LastMid() }

package maker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

// OrderReader is the exchange slice the engine reads resting orders from.
type OrderReader interface {
	GetUserActiveOrders(ctx context.Context, base, quote, user common.Address) ([]exchange.Order, error)
}

// PriceResolver yields one reference price per cycle; ok is false when no
// source could answer.
type PriceResolver interface {
	Resolve(ctx context.Context) (uint64, bool)
}

// OrderSender submits the engine's decisions. Implementations route through
// the execution queue, so calls block until the transaction is accepted or
// terminally failed.
type OrderSender interface {
	PlaceOrder(ctx context.Context, q Quote) error
	CancelOrder(ctx context.Context, id uint64) error
}

// Config is the engine's per-cycle tunables. Snapshots are immutable; Update
// hands the engine a whole new one rather than mutating in place.
type Config struct {
	Ladder       LadderParams
	DeviationBps uint64
}

// Engine reconciles the resting book against the ladder it wants. One cycle
// runs at a time; ticks that land while a cycle is still in flight are
// skipped, not queued.
type Engine struct {
	account common.Address
	base    common.Address
	quote   common.Address

	orders OrderReader
	prices PriceResolver
	sender OrderSender

	cfg     Config
	updates chan Config

	// slot is a single-permit semaphore guarding RunCycle.
	slot chan struct{}

	// lastMid is atomic so the reporter can read it without touching the slot.
	lastMid atomic.Uint64

	observer func(CycleEvent)
}

// CycleEvent describes one completed reconciliation pass.
type CycleEvent struct {
	Decision  string // "replace-all" or "fill-gaps"
	Mid       uint64
	Cancelled int
	Placed    int
}

func NewEngine(account, base, quote common.Address, orders OrderReader, prices PriceResolver, sender OrderSender, cfg Config) *Engine {
	return &Engine{
		account: account,
		base:    base,
		quote:   quote,
		orders:  orders,
		prices:  prices,
		sender:  sender,
		cfg:     cfg,
		updates: make(chan Config, 1),
		slot:    make(chan struct{}, 1),
	}
}

// SetObserver registers a callback invoked after each completed cycle,
// typically to mirror decisions into the JSONL event log. Call before the
// first RunCycle.
func (e *Engine) SetObserver(fn func(CycleEvent)) { e.observer = fn }

// Update hands the engine a new config snapshot. It takes effect at the start
// of the next cycle; a snapshot that was never picked up is replaced.
func (e *Engine) Update(cfg Config) {
	for {
		select {
		case e.updates <- cfg:
			return
		default:
			select {
			case <-e.updates:
			default:
			}
		}
	}
}

// RunCycle performs one reconciliation pass. It returns immediately when the
// previous pass is still running. Errors reading the book abort the pass;
// individual cancel or place failures are logged and the pass continues.
func (e *Engine) RunCycle(ctx context.Context) error {
	select {
	case e.slot <- struct{}{}:
	default:
		log.Printf("[info] reconcile already in flight, skipping tick")
		return nil
	}
	defer func() { <-e.slot }()

	select {
	case cfg := <-e.updates:
		e.cfg = cfg
		log.Printf("[cfg] maker config updated: depth=%d spread=%dbps step=%dbps deviation=%dbps",
			cfg.Ladder.Depth, cfg.Ladder.SpreadBps, cfg.Ladder.StepBps, cfg.DeviationBps)
	default:
	}

	lastMid := e.lastMid.Load()

	mid, ok := e.prices.Resolve(ctx)
	if !ok {
		if lastMid == 0 {
			log.Printf("[warn] no price available and no prior mid, skipping cycle")
			return nil
		}
		mid = lastMid
	}

	active, err := e.orders.GetUserActiveOrders(ctx, e.base, e.quote, e.account)
	if err != nil {
		return fmt.Errorf("read active orders: %w", err)
	}

	if lastMid == 0 || DeviationExceeds(lastMid, mid, e.cfg.DeviationBps) {
		if err := e.replaceAll(ctx, mid, active); err != nil {
			return err
		}
	} else {
		if err := e.fillGaps(ctx, mid, active); err != nil {
			return err
		}
	}

	e.lastMid.Store(mid)
	return nil
}

// replaceAll cancels every resting order, then lays the full ladder around
// mid. Cancels run concurrently since they are independent; a failed cancel
// (typically an order filled mid-flight) is logged and skipped. Placement
// always posts the complete ladder.
func (e *Engine) replaceAll(ctx context.Context, mid uint64, active []exchange.Order) error {
	if len(active) > 0 {
		var wg sync.WaitGroup
		for _, o := range active {
			wg.Add(1)
			go func(o exchange.Order) {
				defer wg.Done()
				if err := e.sender.CancelOrder(ctx, o.ID); err != nil {
					log.Printf("[warn] cancel order %d (%s @ %d): %v", o.ID, o.Side, o.Price, err)
				}
			}(o)
		}
		wg.Wait()
	}

	quotes, err := PlanLadder(mid, e.cfg.Ladder)
	if err != nil {
		return fmt.Errorf("plan ladder: %w", err)
	}
	placed := 0
	for _, q := range quotes {
		if err := e.sender.PlaceOrder(ctx, q); err != nil {
			log.Printf("[warn] place %s %d @ %d: %v", q.Side, q.Quantity, q.Price, err)
			continue
		}
		placed++
	}
	log.Printf("[info] replaced book: cancelled=%d placed=%d/%d mid=%d", len(active), placed, len(quotes), mid)
	if e.observer != nil {
		e.observer(CycleEvent{Decision: "replace-all", Mid: mid, Cancelled: len(active), Placed: placed})
	}
	return nil
}

// fillGaps tops each side back up to the configured depth. New rungs start
// beyond the ones already resting so a partially filled ladder extends
// outward instead of stacking on itself.
func (e *Engine) fillGaps(ctx context.Context, mid uint64, active []exchange.Order) error {
	var buys, sells int
	for _, o := range active {
		if o.Side == exchange.SideBuy {
			buys++
		} else {
			sells++
		}
	}

	placed := 0
	for _, side := range []struct {
		side  exchange.Side
		count int
	}{
		{exchange.SideBuy, buys},
		{exchange.SideSell, sells},
	} {
		missing := e.cfg.Ladder.Depth - side.count
		if missing <= 0 {
			continue
		}
		quotes, err := PlanSide(mid, side.side, side.count, missing, e.cfg.Ladder)
		if err != nil {
			return fmt.Errorf("plan %s rungs: %w", side.side, err)
		}
		for _, q := range quotes {
			if err := e.sender.PlaceOrder(ctx, q); err != nil {
				log.Printf("[warn] place %s %d @ %d: %v", q.Side, q.Quantity, q.Price, err)
				continue
			}
			placed++
		}
	}
	if placed > 0 {
		log.Printf("[info] filled %d gap(s) mid=%d (buys=%d sells=%d)", placed, mid, buys, sells)
	}
	if e.observer != nil {
		e.observer(CycleEvent{Decision: "fill-gaps", Mid: mid, Placed: placed})
	}
	return nil
}

// LastMid exposes the engine's anchor price for reporting.
func (e *Engine) LastMid() uint64 { return e.lastMid.Load() }

package chain

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxFactory signs and broadcasts exactly one transaction with the nonce it is
// handed, returning the transaction hash. The queue may invoke it again with a
// corrected nonce after a nonce-class failure; it must not be invoked
// concurrently with itself.
type TxFactory func(ctx context.Context, nonce uint64) (common.Hash, error)

// NonceSource provides the chain's view of an account's transaction count.
type NonceSource interface {
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
}

// Journal receives every terminally resolved submission. Implemented by
// txlog.Store; a nil journal disables recording.
type Journal interface {
	RecordSend(account common.Address, nonce uint64, kind string, hash common.Hash, attempts int, sendErr error)
}

// SendResult is the terminal outcome of one submission. Exactly one result is
// delivered per Submit call.
type SendResult struct {
	Hash     common.Hash
	Err      error
	Attempts int
}

// QueueOptions tune retry and resync behavior. Zero values take defaults.
type QueueOptions struct {
	// MaxAttempts bounds tries for nonce-class failures (default 5).
	MaxAttempts int
	// BackoffBase is the unit for the 1,2,4,... retry waits (default 1s).
	BackoffBase time.Duration
	// ResyncEvery triggers a chain nonce re-fetch after this many accepted
	// sends (default 5).
	ResyncEvery int
	// ResyncDelay is how long after the trigger the re-fetch runs (default 2s).
	ResyncDelay time.Duration
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.ResyncEvery <= 0 {
		o.ResyncEvery = 5
	}
	if o.ResyncDelay <= 0 {
		o.ResyncDelay = 2 * time.Second
	}
	return o
}

type pendingSend struct {
	kind    string
	factory TxFactory
	result  chan SendResult
}

// ExecQueue serializes outbound transactions for one account. A single drainer
// goroutine owns the nonce counter, so sends are strictly ordered, at most one
// factory invocation is in flight, and no lock guards the nonce.
//
// Nonce discipline: lazily fetched from the chain on first use, incremented
// locally per accepted send, and re-fetched asynchronously after every
// ResyncEvery accepted sends (adopting the chain value only when it is ahead,
// which corrects drift from sends made outside this process).
type ExecQueue struct {
	account common.Address
	nonces  NonceSource
	opts    QueueOptions
	journal Journal

	mu     sync.Mutex
	closed bool

	subCh    chan *pendingSend
	resyncCh chan uint64
	done     chan struct{}

	// Drainer-owned; never touched outside the drain goroutine.
	nonceKnown  bool
	nextNonce   uint64
	sinceResync int
}

// NewExecQueue starts the drainer for account. ctx bounds the queue's own
// chain reads and retry waits; cancelling it abandons queued work, so prefer
// Close for orderly shutdown.
func NewExecQueue(ctx context.Context, account common.Address, nonces NonceSource, journal Journal, opts QueueOptions) *ExecQueue {
	q := &ExecQueue{
		account:  account,
		nonces:   nonces,
		opts:     opts.withDefaults(),
		journal:  journal,
		subCh:    make(chan *pendingSend, 64),
		resyncCh: make(chan uint64, 1),
		done:     make(chan struct{}),
	}
	go q.drain(ctx)
	return q
}

func (q *ExecQueue) Account() common.Address { return q.account }

// Submit appends a send to the queue and returns a single-result channel. The
// channel always receives exactly one SendResult, including when the queue is
// already closed.
func (q *ExecQueue) Submit(kind string, factory TxFactory) <-chan SendResult {
	p := &pendingSend{kind: kind, factory: factory, result: make(chan SendResult, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		p.result <- SendResult{Err: fmt.Errorf("exec queue closed (account=%s kind=%s)", q.account.Hex(), kind)}
		return p.result
	}
	q.subCh <- p
	q.mu.Unlock()
	return p.result
}

// SubmitWait submits and blocks until the send terminally resolves or ctx is
// cancelled. An abandoned send still completes in the background; its outcome
// is journaled.
func (q *ExecQueue) SubmitWait(ctx context.Context, kind string, factory TxFactory) (common.Hash, error) {
	res := q.Submit(kind, factory)
	select {
	case r := <-res:
		return r.Hash, r.Err
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
}

// Close stops accepting submissions, lets queued sends resolve, and waits for
// the drainer to exit.
func (q *ExecQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.subCh)
	q.mu.Unlock()
	<-q.done
}

func (q *ExecQueue) drain(ctx context.Context) {
	defer close(q.done)
	for p := range q.subCh {
		q.process(ctx, p)
	}
}

func (q *ExecQueue) process(ctx context.Context, p *pendingSend) {
	q.adoptResync()

	if !q.nonceKnown {
		n, err := q.nonces.PendingNonce(ctx, q.account)
		if err != nil {
			q.resolve(p, SendResult{Err: fmt.Errorf("initial nonce fetch: %w", err), Attempts: 0})
			return
		}
		q.nextNonce = n
		q.nonceKnown = true
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		hash, err := p.factory(ctx, q.nextNonce)
		if err == nil {
			q.resolve(p, SendResult{Hash: hash, Attempts: attempt + 1})
			q.nextNonce++
			q.sinceResync++
			if q.sinceResync >= q.opts.ResyncEvery {
				q.sinceResync = 0
				q.scheduleResync(ctx)
			}
			return
		}
		lastErr = err

		if !IsNonceError(err) {
			q.resolve(p, SendResult{Err: err, Attempts: attempt + 1})
			return
		}

		// Nonce conflict: adopt the chain's count, back off, try again.
		if n, rerr := q.nonces.PendingNonce(ctx, q.account); rerr == nil {
			q.nextNonce = n
		} else {
			log.Printf("[warn] nonce resync failed (account=%s): %v", q.account.Hex(), rerr)
		}
		sleepWithContext(ctx, q.opts.BackoffBase<<attempt)

		if attempt+1 >= q.opts.MaxAttempts {
			q.resolve(p, SendResult{
				Err:      fmt.Errorf("send failed after %d attempts: %w", attempt+1, lastErr),
				Attempts: attempt + 1,
			})
			return
		}
		if ctx.Err() != nil {
			q.resolve(p, SendResult{Err: fmt.Errorf("send aborted: %w", ctx.Err()), Attempts: attempt + 1})
			return
		}
	}
}

// resolve delivers the terminal outcome to the caller and the journal. The
// result channel is buffered, so delivery never blocks even if the caller
// walked away.
func (q *ExecQueue) resolve(p *pendingSend, r SendResult) {
	if q.journal != nil {
		q.journal.RecordSend(q.account, q.nextNonce, p.kind, r.Hash, r.Attempts, r.Err)
	}
	p.result <- r
}

// scheduleResync fetches the on-chain nonce after ResyncDelay and hands it to
// the drainer, which adopts it before the next send if it is ahead of the
// local counter.
func (q *ExecQueue) scheduleResync(ctx context.Context) {
	go func() {
		sleepWithContext(ctx, q.opts.ResyncDelay)
		if ctx.Err() != nil {
			return
		}
		n, err := q.nonces.PendingNonce(ctx, q.account)
		if err != nil {
			log.Printf("[warn] scheduled nonce resync failed (account=%s): %v", q.account.Hex(), err)
			return
		}
		select {
		case q.resyncCh <- n:
		default:
		}
	}()
}

func (q *ExecQueue) adoptResync() {
	select {
	case n := <-q.resyncCh:
		if n > q.nextNonce {
			log.Printf("[info] nonce resync: local=%d chain=%d, adopting chain value (account=%s)", q.nextNonce, n, q.account.Hex())
			q.nextNonce = n
			q.nonceKnown = true
		}
	default:
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

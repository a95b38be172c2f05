package chain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type fakeNonces struct {
	mu    sync.Mutex
	n     uint64
	calls int
}

func (f *fakeNonces) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.n, nil
}

func (f *fakeNonces) set(n uint64) {
	f.mu.Lock()
	f.n = n
	f.mu.Unlock()
}

func fastOpts() QueueOptions {
	return QueueOptions{
		MaxAttempts: 5,
		BackoffBase: time.Millisecond,
		ResyncEvery: 5,
		ResyncDelay: 5 * time.Millisecond,
	}
}

func hashFromNonce(nonce uint64) common.Hash {
	var h common.Hash
	h[31] = byte(nonce)
	return h
}

func TestSubmitNoncesStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	src := &fakeNonces{n: 7}
	q := NewExecQueue(ctx, testAccount, src, nil, fastOpts())
	defer q.Close()

	var mu sync.Mutex
	var used []uint64
	factory := func(ctx context.Context, nonce uint64) (common.Hash, error) {
		mu.Lock()
		used = append(used, nonce)
		mu.Unlock()
		return hashFromNonce(nonce), nil
	}

	const sends = 12
	for i := 0; i < sends; i++ {
		if _, err := q.SubmitWait(ctx, "place", factory); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(used) != sends {
		t.Fatalf("got %d factory calls, want %d", len(used), sends)
	}
	for i, n := range used {
		if want := uint64(7 + i); n != want {
			t.Fatalf("send %d used nonce %d, want %d (no gaps, no repeats)", i, n, want)
		}
	}
}

func TestAtMostOneFactoryInFlight(t *testing.T) {
	ctx := context.Background()
	q := NewExecQueue(ctx, testAccount, &fakeNonces{}, nil, fastOpts())
	defer q.Close()

	var inFlight, maxSeen int32
	factory := func(ctx context.Context, nonce uint64) (common.Hash, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxSeen)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxSeen, prev, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return hashFromNonce(nonce), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.SubmitWait(ctx, "place", factory); err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&maxSeen); got != 1 {
		t.Fatalf("observed %d concurrent factory invocations, want 1", got)
	}
}

func TestNonceErrorRetriesAreBounded(t *testing.T) {
	ctx := context.Background()
	q := NewExecQueue(ctx, testAccount, &fakeNonces{}, nil, fastOpts())
	defer q.Close()

	var attempts int32
	sendErr := errors.New("nonce too low")
	factory := func(ctx context.Context, nonce uint64) (common.Hash, error) {
		atomic.AddInt32(&attempts, 1)
		return common.Hash{}, sendErr
	}

	_, err := q.SubmitWait(ctx, "place", factory)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected last send error to surface, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 5 {
		t.Fatalf("made %d attempts, want exactly 5", got)
	}
}

func TestNonNonceErrorFailsImmediately(t *testing.T) {
	ctx := context.Background()
	q := NewExecQueue(ctx, testAccount, &fakeNonces{}, nil, fastOpts())
	defer q.Close()

	var attempts int32
	sendErr := errors.New("execution reverted: insufficient balance")
	factory := func(ctx context.Context, nonce uint64) (common.Hash, error) {
		atomic.AddInt32(&attempts, 1)
		return common.Hash{}, sendErr
	}

	_, err := q.SubmitWait(ctx, "place", factory)
	if !errors.Is(err, sendErr) {
		t.Fatalf("got %v, want the original send error", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("made %d attempts, want exactly 1 (no retry on non-nonce failures)", got)
	}
}

func TestRetrySucceedsAfterResync(t *testing.T) {
	ctx := context.Background()
	src := &fakeNonces{n: 3}
	q := NewExecQueue(ctx, testAccount, src, nil, fastOpts())
	defer q.Close()

	// First attempt collides; the queue should re-fetch (now 9) and succeed.
	var attempts int32
	factory := func(ctx context.Context, nonce uint64) (common.Hash, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			src.set(9)
			return common.Hash{}, errors.New("replacement transaction underpriced")
		}
		if nonce != 9 {
			return common.Hash{}, errors.New("execution reverted: wrong nonce adopted")
		}
		return hashFromNonce(nonce), nil
	}

	hash, err := q.SubmitWait(ctx, "place", factory)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if hash != hashFromNonce(9) {
		t.Fatalf("got hash %s, want send with resynced nonce 9", hash.Hex())
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("made %d attempts, want 2", got)
	}
}

func TestScheduledResyncAdoptsChainNonceWhenAhead(t *testing.T) {
	ctx := context.Background()
	src := &fakeNonces{n: 0}
	q := NewExecQueue(ctx, testAccount, src, nil, fastOpts())
	defer q.Close()

	var mu sync.Mutex
	var used []uint64
	factory := func(ctx context.Context, nonce uint64) (common.Hash, error) {
		mu.Lock()
		used = append(used, nonce)
		mu.Unlock()
		return hashFromNonce(nonce), nil
	}

	// Five accepted sends trigger the scheduled resync.
	for i := 0; i < 5; i++ {
		if _, err := q.SubmitWait(ctx, "place", factory); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	// Simulate sends made outside this process: chain count jumps ahead.
	src.set(50)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := q.SubmitWait(ctx, "place", factory); err != nil {
			t.Fatalf("post-resync send: %v", err)
		}
		mu.Lock()
		last := used[len(used)-1]
		mu.Unlock()
		if last >= 50 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue never adopted chain nonce 50 (last used %d)", last)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitOrderIsFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewExecQueue(ctx, testAccount, &fakeNonces{}, nil, fastOpts())
	defer q.Close()

	var mu sync.Mutex
	var order []int
	results := make([]<-chan SendResult, 0, 8)
	for i := 0; i < 8; i++ {
		i := i
		results = append(results, q.Submit("place", func(ctx context.Context, nonce uint64) (common.Hash, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return hashFromNonce(nonce), nil
		}))
	}
	for i, res := range results {
		if r := <-res; r.Err != nil {
			t.Fatalf("send %d: %v", i, r.Err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("sends executed out of order: %v", order)
		}
	}
}

func TestClosedQueueResolvesSubmissions(t *testing.T) {
	q := NewExecQueue(context.Background(), testAccount, &fakeNonces{}, nil, fastOpts())
	q.Close()

	res := <-q.Submit("place", func(ctx context.Context, nonce uint64) (common.Hash, error) {
		t.Fatalf("factory must not run on a closed queue")
		return common.Hash{}, nil
	})
	if res.Err == nil {
		t.Fatalf("expected an error from a closed queue, got success")
	}
}

func TestIsNonceError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"nonce too low", true},
		{"invalid nonce", true},
		{"replacement transaction underpriced", true},
		{"already known", true},
		{"Nonce Too High", true},
		{"execution reverted", false},
		{"insufficient funds for gas * price + value", false},
		{"", false},
	}
	for _, tt := range tests {
		var err error
		if tt.msg != "" {
			err = errors.New(tt.msg)
		}
		if got := IsNonceError(err); got != tt.want {
			t.Fatalf("IsNonceError(%q)=%v want %v", tt.msg, got, tt.want)
		}
	}
}

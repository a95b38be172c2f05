package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultStreamMaxAge rejects cached stream prices older than one hour.
const DefaultStreamMaxAge = time.Hour

const streamPingInterval = 5 * time.Second

// streamTick is the expected trade/ticker envelope. Price arrives as a
// decimal string; symbol filtering happens here so the endpoint can multiplex.
type streamTick struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type streamSubscribe struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Stream keeps a websocket open to a spot feed and caches the last tick.
// MidPrice never blocks on the network; it answers from the cache and errors
// when nothing fresh has arrived. Start must be called once before use.
type Stream struct {
	URL    string
	Symbol string
	MaxAge time.Duration

	mu       sync.RWMutex
	last     uint64
	lastSeen time.Time
}

func (s *Stream) Name() string { return "stream" }

// MidPrice returns the cached tick, rejecting it once it ages past MaxAge.
func (s *Stream) MidPrice(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	last, seen := s.last, s.lastSeen
	s.mu.RUnlock()

	if last == 0 {
		return 0, fmt.Errorf("no tick received yet")
	}
	maxAge := s.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultStreamMaxAge
	}
	if age := time.Since(seen); age > maxAge {
		return 0, fmt.Errorf("cached tick is stale (last seen %s ago)", age.Truncate(time.Second))
	}
	return last, nil
}

func (s *Stream) store(p uint64) {
	s.mu.Lock()
	s.last = p
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// Start runs the connect loop until ctx is cancelled, reconnecting with
// doubling backoff and jitter. Safe to skip entirely when no stream URL is
// configured; MidPrice then always errors and the chain falls through.
func (s *Stream) Start(ctx context.Context) {
	if s.URL == "" {
		return
	}
	go func() {
		backoff := 500 * time.Millisecond
		const maxBackoff = 15 * time.Second
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
			if err != nil {
				log.Printf("[warn] stream dial %s: %v", s.URL, err)
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, maxBackoff)
				continue
			}

			backoff = 500 * time.Millisecond

			if err := s.runSession(ctx, conn); err != nil && ctx.Err() == nil {
				log.Printf("[warn] stream session: %v", err)
			}
			_ = conn.Close()

			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, maxBackoff)
		}
	}()
}

func (s *Stream) runSession(ctx context.Context, conn *websocket.Conn) error {
	req := streamSubscribe{Action: "subscribe", Symbols: []string{s.Symbol}}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("stream subscribe marshal: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return fmt.Errorf("stream subscribe write: %w", err)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer stopAll()
		t := time.NewTicker(streamPingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if werr != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			stopAll()
			// Expected during shutdown.
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream read: %w", err)
		}

		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 || string(msg) == "pong" || string(msg) == "ping" {
			continue
		}

		var tick streamTick
		if err := json.Unmarshal(msg, &tick); err != nil {
			log.Printf("[warn] stream decode: %v", err)
			continue
		}
		if tick.Symbol != "" && s.Symbol != "" && tick.Symbol != s.Symbol {
			continue
		}
		if tick.Price == "" {
			continue
		}
		p, err := ParseDecimalPrice(tick.Price)
		if err != nil {
			log.Printf("[warn] stream tick: %v", err)
			continue
		}
		s.store(p)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int64N(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Great-Trading-eXperience/barista-bot/internal/exchange"
)

// REST queries an external spot-price endpoint returning {"price":"..."} for
// a symbol. The decimal string is converted to 8-decimal fixed point exactly;
// float parsing would drift on prices like "2000.00000001".
type REST struct {
	URL    string
	Symbol string

	// Client defaults to a shared 10s-timeout client.
	Client *http.Client
}

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

type restResponse struct {
	Price string `json:"price"`
}

func (r *REST) Name() string { return "rest" }

func (r *REST) MidPrice(ctx context.Context) (uint64, error) {
	if strings.TrimSpace(r.URL) == "" {
		return 0, fmt.Errorf("rest feed url not configured")
	}
	client := r.Client
	if client == nil {
		client = defaultHTTPClient
	}

	u := r.URL
	if r.Symbol != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "symbol=" + url.QueryEscape(r.Symbol)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("spot feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var parsed restResponse
	if err := json.Unmarshal(b, &parsed); err != nil {
		return 0, fmt.Errorf("decode spot feed response: %w (body=%s)", err, strings.TrimSpace(string(b)))
	}
	return ParseDecimalPrice(parsed.Price)
}

// ParseDecimalPrice converts a decimal price string into exchange-native
// 8-decimal fixed point, truncating digits beyond the scale.
func ParseDecimalPrice(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("non-positive price %q", s)
	}
	atoms := d.Shift(exchange.PriceDecimals).Truncate(0).BigInt()
	if !atoms.IsUint64() {
		return 0, fmt.Errorf("price %q overflows fixed-point range", s)
	}
	return atoms.Uint64(), nil
}

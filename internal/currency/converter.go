// Package currency resolves exchange rates against the base currency.
//
// The rate table starts from a conservative fallback set and is refreshed
// from an external JSON endpoint. A failed refresh keeps the previous table.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// DefaultRatesURL is formatted with the base currency code.
const DefaultRatesURL = "https://api.exchangerate-api.com/v4/latest/%s"

var one = decimal.NewFromInt(1)

// FallbackRates are the rates to MXN used until the first refresh succeeds.
func FallbackRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USD": decimal.RequireFromString("17.50"),
		"EUR": decimal.RequireFromString("19.00"),
		"GBP": decimal.RequireFromString("22.00"),
		"CAD": decimal.RequireFromString("13.00"),
		"MXN": one,
	}
}

// Converter holds the table of rates to the base currency.
type Converter struct {
	base     string
	ratesURL string
	client   *http.Client

	mu        sync.RWMutex
	rates     map[string]decimal.Decimal
	updatedAt time.Time

	refreshGroup singleflight.Group
}

type Option func(*Converter)

// WithRatesURL overrides the refresh endpoint. A %s verb is replaced by the
// base currency.
func WithRatesURL(url string) Option {
	return func(c *Converter) {
		if url != "" {
			c.ratesURL = url
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Converter) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRates replaces the initial table.
func WithRates(rates map[string]decimal.Decimal) Option {
	return func(c *Converter) {
		c.rates = make(map[string]decimal.Decimal, len(rates))
		for code, r := range rates {
			c.rates[strings.ToUpper(code)] = r
		}
	}
}

func NewConverter(base string, opts ...Option) *Converter {
	c := &Converter{
		base:     strings.ToUpper(base),
		ratesURL: DefaultRatesURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		rates:    FallbackRates(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rates[c.base] = one
	return c
}

// Base returns the base currency code.
func (c *Converter) Base() string {
	return c.base
}

// Rate returns how many units of to buy one unit of from. An empty to means
// the base currency. Unknown currencies count as 1.
func (c *Converter) Rate(from, to string) decimal.Decimal {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if to == "" {
		to = c.base
	}
	if from == to {
		return one
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case to == c.base:
		return c.toBase(from)
	case from == c.base:
		return invert(c.toBase(to))
	default:
		rateB := c.toBase(to)
		if !rateB.IsPositive() {
			return one
		}
		return c.toBase(from).Div(rateB)
	}
}

// RateToBase is Rate(from, base).
func (c *Converter) RateToBase(from string) decimal.Decimal {
	return c.Rate(from, c.base)
}

func (c *Converter) toBase(code string) decimal.Decimal {
	if code == c.base {
		return one
	}
	if r, ok := c.rates[code]; ok && r.IsPositive() {
		return r
	}
	return one
}

func invert(r decimal.Decimal) decimal.Decimal {
	if !r.IsPositive() {
		return one
	}
	return one.Div(r)
}

// Rates returns a copy of the current table.
func (c *Converter) Rates() map[string]decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(c.rates))
	for code, r := range c.rates {
		out[code] = r
	}
	return out
}

// Currencies returns the known currency codes, sorted.
func (c *Converter) Currencies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// UpdatedAt reports the last successful refresh, zero if none.
func (c *Converter) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Refresh fetches the latest table. Concurrent callers share one request.
// On error the current table is left untouched.
func (c *Converter) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.fetch(ctx)
	})
	return err
}

func (c *Converter) fetch(ctx context.Context) error {
	url := c.ratesURL
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, c.base)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build rates request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode rates: %w", err)
	}

	// The endpoint quotes base -> X, the table holds X -> base.
	updated := 0
	c.mu.Lock()
	for code, r := range body.Rates {
		if !r.IsPositive() {
			continue
		}
		c.rates[strings.ToUpper(code)] = one.Div(r)
		updated++
	}
	c.rates[c.base] = one
	c.updatedAt = time.Now().UTC()
	c.mu.Unlock()

	slog.InfoContext(ctx, "Exchange rates refreshed", "base", c.base, "currencies", updated)
	return nil
}

// Run refreshes immediately and then on every tick until ctx is done.
// Failures are logged and the previous table stays in use.
func (c *Converter) Run(ctx context.Context, interval time.Duration) {
	if err := c.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "Exchange rate refresh failed, keeping cached rates", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				slog.WarnContext(ctx, "Exchange rate refresh failed, keeping cached rates", "error", err)
			}
		}
	}
}

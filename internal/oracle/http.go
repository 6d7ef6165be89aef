package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	defaultTimeout = 5 * time.Second
	cacheTTL       = 30 * time.Second
)

// HTTPOracle queries a price API for token USD data. All requests run behind
// a circuit breaker; while the breaker is open every lookup misses, which
// downstream treats as degraded rather than an error.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	priceUsd     float64
	liquidityUsd float64
	fetchedAt    time.Time
}

// tokenQuote is the provider response shape.
type tokenQuote struct {
	Mint         string  `json:"mint"`
	PriceUsd     float64 `json:"priceUsd"`
	LiquidityUsd float64 `json:"liquidityUsd"`
}

// NewHTTPOracle creates an oracle client for baseURL. Timeout <= 0 uses the
// default.
func NewHTTPOracle(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPOracle {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	settings := gobreaker.Settings{
		Name:     "oracle",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}

	return &HTTPOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log.With().Str("component", "oracle").Logger(),
		cache:   make(map[string]cachedQuote),
	}
}

// PriceUsd returns the USD price for a mint.
func (o *HTTPOracle) PriceUsd(ctx context.Context, mint string) (float64, bool) {
	q, ok := o.quote(ctx, mint)
	if !ok || q.priceUsd <= 0 {
		return 0, false
	}
	return q.priceUsd, true
}

// LiquidityUsd returns the pool liquidity in USD for a mint.
func (o *HTTPOracle) LiquidityUsd(ctx context.Context, mint string) (float64, bool) {
	q, ok := o.quote(ctx, mint)
	if !ok || q.liquidityUsd <= 0 {
		return 0, false
	}
	return q.liquidityUsd, true
}

func (o *HTTPOracle) quote(ctx context.Context, mint string) (cachedQuote, bool) {
	o.mu.RLock()
	cached, ok := o.cache[mint]
	o.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < cacheTTL {
		return cached, true
	}

	result, err := o.breaker.Execute(func() (interface{}, error) {
		return o.fetch(ctx, mint)
	})
	if err != nil {
		// Stale cache beats nothing while the provider is down.
		if ok {
			return cached, true
		}
		o.log.Debug().Err(err).Str("mint", mint).Msg("quote miss")
		return cachedQuote{}, false
	}

	q := result.(tokenQuote)
	entry := cachedQuote{
		priceUsd:     q.PriceUsd,
		liquidityUsd: q.LiquidityUsd,
		fetchedAt:    time.Now(),
	}

	o.mu.Lock()
	o.cache[mint] = entry
	o.mu.Unlock()

	return entry, true
}

func (o *HTTPOracle) fetch(ctx context.Context, mint string) (tokenQuote, error) {
	u := fmt.Sprintf("%s/v1/tokens/%s", o.baseURL, url.PathEscape(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return tokenQuote{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return tokenQuote{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return tokenQuote{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var q tokenQuote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return tokenQuote{}, fmt.Errorf("decode quote: %w", err)
	}

	return q, nil
}

var _ Oracle = (*HTTPOracle)(nil)

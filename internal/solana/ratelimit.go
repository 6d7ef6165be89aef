package solana

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Adaptive limiter tuning. On a 429 the rate halves; once a clear interval
// passes without throttling, each success nudges it back up by 10% until the
// configured rate is restored.
const (
	throttleFactor    = 0.5
	recoveryFactor    = 1.1
	recoveryClearTime = 10 * time.Second
	minRequestsPerSec = 0.2
)

// AdaptiveLimiter is a token-bucket limiter that adapts to provider
// throttling. Safe for concurrent use.
type AdaptiveLimiter struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	configured   rate.Limit
	lastThrottle time.Time
}

// NewAdaptiveLimiter creates a limiter starting at rps requests per second
// with a burst of one token per whole rps (minimum 1).
func NewAdaptiveLimiter(rps float64) *AdaptiveLimiter {
	if rps < minRequestsPerSec {
		rps = minRequestsPerSec
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		configured: rate.Limit(rps),
	}
}

// Wait blocks until a request may proceed or the context is cancelled.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// OnThrottle halves the current rate in response to a 429.
func (l *AdaptiveLimiter) OnThrottle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.limiter.Limit() * throttleFactor
	if next < minRequestsPerSec {
		next = minRequestsPerSec
	}
	l.limiter.SetLimit(next)
	l.lastThrottle = time.Now()
}

// OnSuccess restores rate gradually after a quiet period, never above the
// configured rate.
func (l *AdaptiveLimiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.limiter.Limit()
	if cur >= l.configured {
		return
	}
	if time.Since(l.lastThrottle) < recoveryClearTime {
		return
	}
	next := cur * recoveryFactor
	if next > l.configured {
		next = l.configured
	}
	l.limiter.SetLimit(next)
}

// Rate returns the current requests-per-second limit.
func (l *AdaptiveLimiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return float64(l.limiter.Limit())
}

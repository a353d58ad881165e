// Package rest implements the signed REST client: request signing, response
// classification with Retry-After parsing, and a token-bucket rate limiter
// tuned to BitMEX's published per-category limits.
package rest

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a continuous-refill rate limiter. Callers block in Wait
// until a token is available or ctx is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewTokenBucket creates a bucket with the given burst capacity and refill
// rate in tokens per second.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups token buckets by BitMEX REST endpoint category.
// Order/Amend/Cancel share BitMEX's trading-endpoint limit; Query covers
// GET requests used for reconciliation, which carry a lower limit.
type RateLimiter struct {
	Trading *TokenBucket
	Query   *TokenBucket
}

// NewRateLimiter creates rate limiters tuned to BitMEX's published REST
// limits: 120 requests per minute for trading endpoints burst-smoothed to a
// continuous refill, 60 requests per minute for read-only queries under an
// API key.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Trading: NewTokenBucket(30, 2),
		Query:   NewTokenBucket(20, 1),
	}
}

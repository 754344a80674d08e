// Package anonchannel implements the fully anonymous reporting channel:
// receipt-code identity, Tor-aware rate limiting and the two-way message
// box. Nothing in this package ever touches a network identity — requests
// are keyed by Tor circuit, never by IP.
package anonchannel

import (
	"context"
	"fmt"
	"time"

	"github.com/aitema/hinweis-backend/internal/errs"
	"github.com/aitema/hinweis-backend/internal/infra"
)

const (
	rateLimitMax    = 5
	rateLimitWindow = 60 * time.Second
)

// Limiter enforces the sliding-window submission limit. Keys are the Tor
// circuit id when present; requests without one share a per-tenant bucket.
type Limiter struct {
	kv     infra.KV
	max    int64
	window time.Duration
}

// NewLimiter creates the submission limiter over the given store.
func NewLimiter(kv infra.KV) *Limiter {
	return &Limiter{kv: kv, max: rateLimitMax, window: rateLimitWindow}
}

// Allow counts one request. Returns RateLimited once the window is full.
func (l *Limiter) Allow(ctx context.Context, tenantID, circuitID string) error {
	bucket := circuitID
	if bucket == "" {
		bucket = "shared"
	}
	key := fmt.Sprintf("anon:rl:%s:%s", tenantID, bucket)

	count, err := l.kv.IncrWindow(ctx, key, l.window)
	if err != nil {
		// A broken limiter store must not take the channel down.
		return nil
	}
	if count > l.max {
		return errs.RateLimited(int(l.window / time.Second))
	}
	return nil
}

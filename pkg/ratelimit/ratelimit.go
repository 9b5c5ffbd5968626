// Package ratelimit implements the per-tenant token bucket that throttles
// LLM and embedding calls so one tenant cannot exhaust the shared TPM
// budget, built on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is a process-wide registry of per-tenant token buckets; exactly
// one Limiter is constructed at process start and frozen.
type Limiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func New(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		rps:     rate.Limit(requestsPerSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) bucket(tenantID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[tenantID]
	if !ok {
		b = rate.NewLimiter(l.rps, l.burst)
		l.buckets[tenantID] = b
	}
	return b
}

// Wait blocks until tenantID's bucket admits one unit of work, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, tenantID string) error {
	return l.bucket(tenantID).Wait(ctx)
}

// Allow reports, without blocking, whether tenantID may proceed now.
func (l *Limiter) Allow(tenantID string) bool {
	return l.bucket(tenantID).Allow()
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Pacer issues requests no closer together than a fixed delay. The first
// request goes out immediately. Requests are never repeated: a failed
// request is the caller's to record.
type Pacer struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewPacer wraps client so consecutive Do calls are at least delay apart.
// A non-positive delay disables pacing.
func NewPacer(client *http.Client, delay time.Duration, userAgent string) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: userAgent,
	}
}

// Do waits for the next slot, then executes req. If ctx is cancelled while
// waiting, Do returns ctx.Err() without sending anything.
func (p *Pacer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("waiting for request slot: %w", err)
	}
	req = req.Clone(ctx)
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	return p.client.Do(req)
}

// ErrTooManyFailures is returned by Guard once the consecutive failure
// limit has been reached.
var ErrTooManyFailures = errors.New("too many consecutive failures")

// Guard stops a run of requests after a number of consecutive failures,
// so a revoked key or a dead endpoint does not burn through the whole
// dataset. A nil Guard runs everything.
type Guard struct {
	cb    *gobreaker.CircuitBreaker[struct{}]
	limit int
}

// NewGuard returns a Guard that opens after limit consecutive failures.
// A non-positive limit returns nil, which disables the guard.
func NewGuard(name string, limit int) *Guard {
	if limit <= 0 {
		return nil
	}
	settings := gobreaker.Settings{
		Name: name,
		// Stay open for the rest of any realistic batch.
		Timeout: 24 * time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(limit)
		},
	}
	return &Guard{
		cb:    gobreaker.NewCircuitBreaker[struct{}](settings),
		limit: limit,
	}
}

// Do runs fn unless the guard is open. fn's error is returned unchanged
// and counts as a failure; once the limit is reached every later call
// returns ErrTooManyFailures without running fn.
func (g *Guard) Do(fn func() error) error {
	if g == nil {
		return fn()
	}
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w (%d in a row)", ErrTooManyFailures, g.limit)
	}
	return err
}

// Open reports whether the guard has tripped.
func (g *Guard) Open() bool {
	return g != nil && g.cb.State() == gobreaker.StateOpen
}

package network

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errLimiterStopped tells a waiter its limiter was replaced or closed
// before its turn came.
var errLimiterStopped = errors.New("rate limiter stopped")

// rateLimiter releases one waiter per interval. Waiters block on an
// unbuffered channel, whose receive queue is FIFO.
type rateLimiter struct {
	interval time.Duration
	tickets  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// limitInterval is the dispatch spacing for rps, or 0 for no limit.
func limitInterval(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}

// newRateLimiter returns nil when rps does not impose a limit.
func newRateLimiter(rps float64) *rateLimiter {
	if rps <= 0 {
		return nil
	}
	l := &rateLimiter{
		interval: limitInterval(rps),
		tickets:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *rateLimiter) run() {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-timer.C:
		}
		select {
		case <-l.done:
			return
		case l.tickets <- struct{}{}:
		}
		timer.Reset(l.interval)
	}
}

// Wait blocks until the caller's turn. Waiters on a stopped limiter get
// errLimiterStopped and must not dispatch.
func (l *rateLimiter) Wait(ctx context.Context) error {
	select {
	case <-l.tickets:
		return nil
	case <-l.done:
		return errLimiterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *rateLimiter) stop() {
	l.once.Do(func() { close(l.done) })
}

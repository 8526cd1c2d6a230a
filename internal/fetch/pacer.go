package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Pacer enforces a minimum gap between consecutive requests to one origin.
// A run creates one Pacer and shares it between every fetcher call, so the
// gap holds across crawling, authentication and fuzzing alike.
//
// The gap runs from the end of one request to the start of the next: a
// caller brackets each request with Wait and Done. A response slower than
// the gap therefore still leaves a full gap before the next request.
//
// Design decision: while a gap is set, only one request is in flight at a
// time. Wait takes the single slot and Done gives it back, so the limiter
// is only ever touched by the slot holder and Done may replace it without
// stranding a reservation made by another worker. Crawl workers above one
// still overlap parsing and classification, just not requests.
type Pacer struct {
	gap  time.Duration
	slot *semaphore.Weighted

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewPacer returns a pacer allowing one request per gap. A gap of zero or
// less disables pacing.
func NewPacer(gap time.Duration) *Pacer {
	if gap <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{
		gap:     gap,
		slot:    semaphore.NewWeighted(1),
		limiter: rate.NewLimiter(rate.Every(gap), 1),
	}
}

// Wait blocks until the next request may start or ctx is done. Every
// successful Wait must be followed by exactly one Done.
// A nil Pacer never blocks.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if p.slot != nil {
		if err := p.slot.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	p.mu.Lock()
	l := p.limiter
	p.mu.Unlock()
	if err := l.Wait(ctx); err != nil {
		if p.slot != nil {
			p.slot.Release(1)
		}
		return err
	}
	return nil
}

// Done marks the end of a request; the next one may start one gap later.
func (p *Pacer) Done() {
	if p == nil || p.gap <= 0 {
		return
	}
	l := rate.NewLimiter(rate.Every(p.gap), 1)
	l.AllowN(time.Now(), 1)

	p.mu.Lock()
	p.limiter = l
	p.mu.Unlock()
	p.slot.Release(1)
}

// Gap returns the configured gap.
func (p *Pacer) Gap() time.Duration {
	if p == nil {
		return 0
	}
	return p.gap
}

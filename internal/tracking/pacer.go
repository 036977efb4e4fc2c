package tracking

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces courier calls within one refresh run.
type Pacer interface {
	Wait(ctx context.Context) error
	// Backoff switches the remaining calls of the run to the slower pace.
	Backoff()
}

type limiterPacer struct {
	limiter *rate.Limiter
	backoff time.Duration
}

// NewPacer allows one call immediately and then one call per interval.
func NewPacer(interval, backoff time.Duration) Pacer {
	return &limiterPacer{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		backoff: backoff,
	}
}

func (p *limiterPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

func (p *limiterPacer) Backoff() {
	p.limiter.SetLimit(rate.Every(p.backoff))
}

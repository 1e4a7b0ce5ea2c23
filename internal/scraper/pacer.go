package scraper

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// JitterPacer waits a random duration between Min and Max before every
// request, keeping the scraper inside the site's tolerance for automated
// traffic.
type JitterPacer struct {
	min time.Duration
	max time.Duration
}

// NewJitterPacer builds a pacer for the [min, max] delay window. A window of
// zero disables pacing, which tests rely on.
func NewJitterPacer(min, max time.Duration) *JitterPacer {
	if max < min {
		max = min
	}
	return &JitterPacer{min: min, max: max}
}

// Wait blocks for a randomized delay or until the context ends.
func (p *JitterPacer) Wait(ctx context.Context) error {
	delay := p.min
	if span := p.max - p.min; span > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(span))); err == nil {
			delay += time.Duration(n.Int64())
		}
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

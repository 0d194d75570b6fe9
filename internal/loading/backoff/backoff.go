// Package backoff computes retry delays with exponential growth and multiplicative jitter.
package backoff

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Policy computes the delay before a retry. It holds no retry history.
type Policy struct {
	Base      time.Duration
	JitterMin float64
	JitterMax float64
	MaxDelay  time.Duration // 0 = uncapped

	mu   sync.Mutex
	rand *rand.Rand
}

// Default returns base 200ms with jitter in [0.5, 1.5).
func Default() *Policy {
	return New(200*time.Millisecond, 0.5, 1.5, 0)
}

// New creates a policy drawing jitter from a randomly seeded source.
func New(base time.Duration, jitterMin, jitterMax float64, maxDelay time.Duration) *Policy {
	return NewWithSource(base, jitterMin, jitterMax, maxDelay, rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewWithSource creates a policy with an explicit random source, for reproducible delays.
func NewWithSource(
	base time.Duration,
	jitterMin, jitterMax float64,
	maxDelay time.Duration,
	src rand.Source,
) *Policy {
	return &Policy{
		Base:      base,
		JitterMin: jitterMin,
		JitterMax: jitterMax,
		MaxDelay:  maxDelay,
		rand:      rand.New(src),
	}
}

// Delay returns Base * 2^(attempt-1) * jitter for the retry following the given
// failed attempt (1-based). Attempts below 1 are treated as 1.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.Base) * math.Pow(2, float64(attempt-1)) * p.jitter()
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay < 0 || math.IsNaN(delay) {
		return 0
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Bounds returns the closed interval Delay(attempt) falls in, ignoring MaxDelay.
func (p *Policy) Bounds(attempt int) (lo, hi time.Duration) {
	if attempt < 1 {
		attempt = 1
	}
	scaled := float64(p.Base) * math.Pow(2, float64(attempt-1))
	return time.Duration(scaled * p.JitterMin), time.Duration(scaled * p.JitterMax)
}

func (p *Policy) jitter() float64 {
	if p.JitterMax <= p.JitterMin {
		return p.JitterMin
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rand == nil {
		p.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p.JitterMin + p.rand.Float64()*(p.JitterMax-p.JitterMin)
}

package executor

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/marketplace"
	"github.com/mandubian/ccos-sub014/value"
)

// AdaptiveRateLimiter applies an AIMD-style token bucket in front of a
// marketplace.Executor: it blocks until capacity is available, then halves
// its effective calls-per-minute budget whenever the wrapped executor
// returns an error of kind hosterr.ProviderError and recovers it gradually
// on every successful call; errors of any other kind leave it unchanged. One limiter instance is meant to sit in front of
// all capabilities dispatched to a single outbound provider.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentCPM   float64
	minCPM       float64
	maxCPM       float64
	recoveryRate float64
}

// NewAdaptiveRateLimiter constructs a limiter with an initial and maximum
// calls-per-minute budget. maxCPM is clamped up to initialCPM when smaller.
func NewAdaptiveRateLimiter(initialCPM, maxCPM float64) *AdaptiveRateLimiter {
	if initialCPM <= 0 {
		initialCPM = 600
	}
	if maxCPM <= 0 || maxCPM < initialCPM {
		maxCPM = initialCPM
	}
	minCPM := initialCPM * 0.1
	if minCPM < 1 {
		minCPM = 1
	}
	recoveryRate := initialCPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialCPM/60.0), int(initialCPM)),
		currentCPM:   initialCPM,
		minCPM:       minCPM,
		maxCPM:       maxCPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns a marketplace.Executor that enforces this limiter in front
// of next.
func (l *AdaptiveRateLimiter) Wrap(next marketplace.Executor) marketplace.Executor {
	return &limitedExecutor{next: next, limiter: l}
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if hosterr.KindOf(err) == hosterr.ProviderError {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newCPM := l.currentCPM * 0.5
	if newCPM < l.minCPM {
		newCPM = l.minCPM
	}
	if newCPM == l.currentCPM {
		return
	}
	l.currentCPM = newCPM
	l.limiter.SetLimit(rate.Limit(newCPM / 60.0))
	l.limiter.SetBurst(int(newCPM))
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newCPM := l.currentCPM + l.recoveryRate
	if newCPM > l.maxCPM {
		newCPM = l.maxCPM
	}
	if newCPM == l.currentCPM {
		return
	}
	l.currentCPM = newCPM
	l.limiter.SetLimit(rate.Limit(newCPM / 60.0))
	l.limiter.SetBurst(int(newCPM))
}

type limitedExecutor struct {
	next    marketplace.Executor
	limiter *AdaptiveRateLimiter
}

func (e *limitedExecutor) Execute(ctx context.Context, m *marketplace.Manifest, args value.Value) (value.Value, error) {
	if err := e.limiter.wait(ctx); err != nil {
		return value.Nil, hosterr.Wrap(hosterr.TimeoutError, "executor: rate limiter wait canceled", err)
	}
	result, err := e.next.Execute(ctx, m, args)
	e.limiter.observe(err)
	return result, err
}

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrBreakerOpen is returned while a Breaker is rejecting calls.
var ErrBreakerOpen = eris.New("resilience: source breaker open")

// Breaker stops calling a source after consecutive transient failures. Once
// the cooldown has passed a single probe call is let through; its result
// closes or reopens the breaker. A nil *Breaker lets every call through.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	open     bool
	probing  bool
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker returns a closed Breaker. threshold defaults to 5 and cooldown
// to 30s.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Guard runs fn unless b is open, and records its outcome.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// Open reports whether calls are currently rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && b.now().Sub(b.openedAt) < b.cooldown
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.probing || b.now().Sub(b.openedAt) < b.cooldown {
		return eris.Wrapf(ErrBreakerOpen, "resilience: %s", b.name)
	}
	b.probing = true
	return nil
}

// record counts transient failures only: a 404 or a parse error says nothing
// about the source's health.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.probing
	b.probing = false

	if err == nil || !IsTransient(err) {
		if b.open {
			zap.L().Info("source breaker closed", zap.String("source", b.name))
		}
		b.open = false
		b.failures = 0
		return
	}

	b.failures++
	if wasProbe || b.failures >= b.threshold {
		if !b.open || wasProbe {
			zap.L().Warn("source breaker opened",
				zap.String("source", b.name),
				zap.Int("failures", b.failures),
				zap.Duration("cooldown", b.cooldown),
			)
		}
		b.open = true
		b.openedAt = b.now()
	}
}

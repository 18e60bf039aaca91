package web

import (
	"context"
	"errors"
	"time"
)

// ErrTooManyPasses is returned when every pass slot stays busy for the whole
// wait period.
var ErrTooManyPasses = errors.New("too many concurrent passes, please try again later")

// Limiter defaults.
const (
	DefaultMaxConcurrentPasses = 4
	DefaultMaxWait             = 30 * time.Second
)

// Limiter bounds the number of build and replay passes running at once. A
// buffered channel holds one token per running pass.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration
}

// NewLimiter allows at most maxConcurrent passes. Values <= 0 use the
// defaults.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentPasses
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to the limiter's max wait. The caller
// must Release the slot when done.
func (l *Limiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyPasses
	}
}

// TryAcquire takes a slot only if one is free.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *Limiter) Release() {
	<-l.slots
}

// Active returns the number of passes holding a slot.
func (l *Limiter) Active() int { return len(l.slots) }

// Capacity returns the slot count.
func (l *Limiter) Capacity() int { return cap(l.slots) }

// WaitForDrain blocks until no pass holds a slot or ctx ends.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

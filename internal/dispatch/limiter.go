package dispatch

// limiter.go bounds how many files are processed at once.
//
// The dispatcher loop takes slots with TryAcquire and never blocks on the
// limiter; paths that find no free slot wait in the loop's ready queue.
// Tasks release their slot when they finish. WaitForDrain lets shutdown wait
// for the last slot to be freed.

import (
	"context"
	"sync"
)

// DefaultMaxConcurrent is the slot count used when a non-positive limit is given.
const DefaultMaxConcurrent = 4

// Limiter is a counting semaphore with observable state.
type Limiter struct {
	slots chan struct{}

	mu     sync.Mutex
	active int
	idle   chan struct{} // closed while no slot is held
}

// NewLimiter creates a limiter with maxConcurrent slots.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	idle := make(chan struct{})
	close(idle)
	return &Limiter{
		slots: make(chan struct{}, maxConcurrent),
		idle:  idle,
	}
}

// TryAcquire takes a slot without blocking. It reports whether it got one.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
	default:
		return false
	}

	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
	return true
}

// Release frees a slot taken by TryAcquire. Call it exactly once per slot.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()

	<-l.slots
}

// MaxConcurrent returns the slot count.
func (l *Limiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no slot is held or ctx is done.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	default:
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LimiterStatus is a snapshot of limiter state.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *Limiter) Status() LimiterStatus {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}

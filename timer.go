package swim

import (
	"context"
	"sync/atomic"
	"time"
)

// Timer is a one-shot, cancellable deadline: after d has elapsed it sends
// value once on sink, unless cancelled or reset first (spec §4.5). It is
// safe to call Reset and the background fire concurrently; the exactly-once
// race between them is arbitrated by an atomic swap on done.
type Timer[T any] struct {
	started time.Time
	done    atomic.Bool
	cancel  context.CancelFunc
}

// NewTimer starts a Timer that fires value on sink after d, unless
// cancelled or reset before then.
func NewTimer[T any](d time.Duration, value T, sink chan<- T) *Timer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Timer[T]{started: time.Now(), cancel: cancel}
	go t.run(ctx, d, value, sink)
	return t
}

func (t *Timer[T]) run(ctx context.Context, d time.Duration, value T, sink chan<- T) {
	wait := time.NewTimer(d)
	defer wait.Stop()

	select {
	case <-ctx.Done():
		return
	case <-wait.C:
	}

	if !t.done.Swap(true) {
		select {
		case sink <- value:
		case <-ctx.Done():
		}
	}
}

// Reset cancels any pending fire, then schedules a new one after
// max(0, d-elapsed), where elapsed is measured since the timer's original
// start (not since the last reset) — an increasing chain of resets cannot
// accumulate delay on top of delay.
//
// If the original fire already won the race (already sent its value), Reset
// is a no-op: the race is exactly-once by construction.
func (t *Timer[T]) Reset(d time.Duration, value T, sink chan<- T) {
	if t.done.Swap(true) {
		return
	}

	t.cancel()
	t.done.Store(false)

	remaining := d - time.Since(t.started)
	if remaining < 0 {
		remaining = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.run(ctx, remaining, value, sink)
}

// Stop cancels the timer's background work. It must be called once the
// Timer is no longer needed, since Go has no destructor to do it
// automatically.
func (t *Timer[T]) Stop() {
	t.done.Store(true)
	t.cancel()
}

package swim

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// IntervalNotifier is the read side of an interval: a single-consumer
// capacity-1 channel that receives a value each time the interval's period
// elapses (spec §4.6, §5).
type IntervalNotifier struct {
	ch <-chan struct{}
}

// C returns the channel to select on.
func (n *IntervalNotifier) C() <-chan struct{} { return n.ch }

// interval is the shared driver behind AwarenessInterval and SyncInterval:
// a background goroutine that notifies at cadence d, where reset(d')
// restarts the period anchored to the previous start time so that an
// increase in d cannot over-fire and a decrease cannot stall (spec §4.6).
type interval struct {
	lastStarted atomic.Value // time.Time
	ch          chan struct{}
	cancel      context.CancelFunc
}

func newInterval(d time.Duration) (*IntervalNotifier, *interval) {
	ch := make(chan struct{}, 1)
	iv := &interval{ch: ch}
	iv.lastStarted.Store(time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	iv.cancel = cancel
	go iv.run(ctx, d)

	return &IntervalNotifier{ch: ch}, iv
}

func (iv *interval) run(ctx context.Context, d time.Duration) {
	for {
		last := iv.lastStarted.Load().(time.Time)
		wait := d - time.Since(last)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		select {
		case iv.ch <- struct{}{}:
		case <-ctx.Done():
			return
		}

		iv.lastStarted.Store(time.Now())
	}
}

// reset cancels the current background goroutine and starts a new one at
// cadence d, anchored to the same lastStarted value.
func (iv *interval) reset(d time.Duration) {
	iv.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	iv.cancel = cancel
	go iv.run(ctx, d)
}

func (iv *interval) stop() { iv.cancel() }

// AwarenessInterval scales its base period by the current Awareness score.
// It is used for the ping and gossip cadences (spec §4.6).
type AwarenessInterval struct {
	base time.Duration
	iv   *interval
}

// NewAwarenessInterval creates an AwarenessInterval with the given base
// period, starting at a multiplier of 1 (fully healthy).
func NewAwarenessInterval(base time.Duration) (*IntervalNotifier, *AwarenessInterval) {
	notifier, iv := newInterval(base)
	return notifier, &AwarenessInterval{base: base, iv: iv}
}

// Update recomputes the period as awareness*base and resets the interval to
// it, returning the new period.
func (a *AwarenessInterval) Update(awareness uint32) time.Duration {
	d := a.base * time.Duration(awareness)
	a.iv.reset(d)
	return d
}

// Stop cancels the interval's background goroutine.
func (a *AwarenessInterval) Stop() { a.iv.stop() }

// SyncInterval keeps full-state syncs logarithmically rare as the cluster
// grows: at or below scale nodes the period is the base; above it, the
// period grows by ceil(log2(n) - log2(scale)) + 1 multiples of the base
// (spec §4.6).
type SyncInterval struct {
	base  time.Duration
	scale uint32
	iv    *interval
}

// NewSyncInterval creates a SyncInterval with the given base period and
// scale threshold.
func NewSyncInterval(base time.Duration, scale uint32) (*IntervalNotifier, *SyncInterval) {
	notifier, iv := newInterval(base)
	return notifier, &SyncInterval{base: base, scale: scale, iv: iv}
}

// Update recomputes the period for nodeCount and resets the interval to it,
// returning the new period.
func (s *SyncInterval) Update(nodeCount uint32) time.Duration {
	var d time.Duration
	if nodeCount <= s.scale {
		d = s.base
	} else {
		multiplier := math.Ceil(math.Log2(float64(nodeCount))-math.Log2(float64(s.scale))) + 1.0
		d = time.Duration(float64(s.base) * multiplier)
	}

	s.iv.reset(d)
	return d
}

// Stop cancels the interval's background goroutine.
func (s *SyncInterval) Stop() { s.iv.stop() }

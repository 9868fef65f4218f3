package swim

import (
	"context"
	"time"
)

// PingTimingConfig holds the probe cadence and timeout base durations.
type PingTimingConfig struct {
	BaseInterval time.Duration
	BaseTimeout  time.Duration
}

// SyncTimingConfig holds the full-state sync cadence base duration and the
// node-count scale below which syncs stay at BaseInterval (spec §4.6).
type SyncTimingConfig struct {
	BaseInterval time.Duration
	Scale        uint32
}

// SchedulerConfig assembles the timing knobs the Scheduler needs.
type SchedulerConfig struct {
	Ping               PingTimingConfig
	Sync               SyncTimingConfig
	BaseGossipInterval time.Duration
	Suspicion          SuspicionConfig
}

// SchedulerEventKind discriminates the five event kinds the Scheduler
// multiplexes to the engine (spec §4.7).
type SchedulerEventKind uint8

const (
	EventSyncInterval SchedulerEventKind = iota
	EventPingInterval
	EventGossipInterval
	EventPingTimeout
	EventSuspicionTimeout
)

// SchedulerEvent is a single tagged event out of the Scheduler's select
// loop. Only the field matching Kind is meaningful.
type SchedulerEvent struct {
	Kind SchedulerEventKind

	PingTimeoutSeq      uint64
	SuspicionTimeoutReq KillRequest
}

// Scheduler owns the three cadence intervals (sync/ping/gossip), the
// PingTimers map and the SuspicionTimers map, and multiplexes their
// outputs into a single ordered stream of SchedulerEvent values (spec
// §4.7, §5).
type Scheduler struct {
	syncNotifier    *IntervalNotifier
	pingNotifier    *IntervalNotifier
	gossipNotifier  *IntervalNotifier
	syncInterval    *SyncInterval
	pingInterval    *AwarenessInterval
	gossipInterval  *AwarenessInterval
	pingTimers      *PingTimers
	suspicionTimers *SuspicionTimers
}

// NewScheduler creates a Scheduler from cfg, seeded with the current node
// count.
func NewScheduler(cfg SchedulerConfig, nodeCount uint32) *Scheduler {
	syncNotifier, syncInterval := NewSyncInterval(cfg.Sync.BaseInterval, cfg.Sync.Scale)
	pingNotifier, pingInterval := NewAwarenessInterval(cfg.Ping.BaseInterval)
	gossipNotifier, gossipInterval := NewAwarenessInterval(cfg.BaseGossipInterval)

	pingTimers := NewPingTimers(cfg.Ping.BaseTimeout)
	suspicionTimers := NewSuspicionTimers(cfg.Suspicion, cfg.Ping.BaseInterval, nodeCount)

	return &Scheduler{
		syncNotifier:    syncNotifier,
		pingNotifier:    pingNotifier,
		gossipNotifier:  gossipNotifier,
		syncInterval:    syncInterval,
		pingInterval:    pingInterval,
		gossipInterval:  gossipInterval,
		pingTimers:      pingTimers,
		suspicionTimers: suspicionTimers,
	}
}

// PingTimers returns the scheduler's PingTimers table.
func (s *Scheduler) PingTimers() *PingTimers { return s.pingTimers }

// SuspicionTimers returns the scheduler's SuspicionTimers table.
func (s *Scheduler) SuspicionTimers() *SuspicionTimers { return s.suspicionTimers }

// UpdateAwareness rescales the ping/gossip intervals and every pending ping
// timer for the new awareness score, then propagates the resulting ping
// interval to the suspicion timers (spec §4.7).
func (s *Scheduler) UpdateAwareness(awareness uint32) {
	s.gossipInterval.Update(awareness)
	pingInterval := s.pingInterval.Update(awareness)

	s.pingTimers.UpdateAwareness(awareness)
	s.suspicionTimers.UpdatePingInterval(pingInterval)
}

// UpdateNodeCount rescales the sync interval and every pending suspicion
// timer for the new cluster size.
func (s *Scheduler) UpdateNodeCount(nodeCount uint32) {
	s.syncInterval.Update(nodeCount)
	s.suspicionTimers.UpdateNodeCount(nodeCount)
}

// Next blocks until the next scheduler event is ready, or ctx is done (in
// which case ok is false). Ties among simultaneously-ready branches are
// resolved by Go's nondeterministic select; per spec §5 correctness must
// not depend on which branch fires first.
func (s *Scheduler) Next(ctx context.Context) (SchedulerEvent, bool) {
	select {
	case <-ctx.Done():
		return SchedulerEvent{}, false

	case <-s.syncNotifier.C():
		return SchedulerEvent{Kind: EventSyncInterval}, true

	case <-s.pingNotifier.C():
		return SchedulerEvent{Kind: EventPingInterval}, true

	case <-s.gossipNotifier.C():
		return SchedulerEvent{Kind: EventGossipInterval}, true

	case req := <-s.suspicionTimers.Timeouts():
		return SchedulerEvent{Kind: EventSuspicionTimeout, SuspicionTimeoutReq: req}, true

	case seq := <-s.pingTimers.Timeouts():
		return SchedulerEvent{Kind: EventPingTimeout, PingTimeoutSeq: seq}, true
	}
}

// Stop cancels every background interval goroutine owned by the scheduler.
// It does not cancel individual ping/suspicion timers; callers that tear
// down the engine should let those drain via their owning maps.
func (s *Scheduler) Stop() {
	s.syncInterval.Stop()
	s.pingInterval.Stop()
	s.gossipInterval.Stop()
}

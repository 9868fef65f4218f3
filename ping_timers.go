package swim

import "time"

// pingTimerKind distinguishes the three timeout phases a sequence number
// can be waiting on (spec §4.7).
type pingTimerKind uint8

const (
	pingTimerNormal pingTimerKind = iota // direct/indirect probes: 100% of the timeout
	pingTimerNack                        // ping-requests, first phase: 80%
	pingTimerGrace                       // ping-requests, second phase: 20%
)

func (k pingTimerKind) multiplier() float64 {
	switch k {
	case pingTimerNack:
		return 0.80
	case pingTimerGrace:
		return 0.20
	default:
		return 1.00
	}
}

type pingTimerEntry struct {
	kind  pingTimerKind
	timer *Timer[uint64]
}

// PingTimers owns one Timer per in-flight sequence number and delivers
// PingTimeout(sequence) events through a single capacity-1 channel (spec
// §4.7, §5).
type PingTimers struct {
	baseTimeout time.Duration
	awareness   uint32
	entries     map[uint64]pingTimerEntry
	timeouts    chan uint64
}

// NewPingTimers creates an empty PingTimers driven at the given base
// timeout. Call Timeouts() to obtain the event channel.
func NewPingTimers(baseTimeout time.Duration) *PingTimers {
	return &PingTimers{
		baseTimeout: baseTimeout,
		awareness:   1,
		entries:     make(map[uint64]pingTimerEntry),
		timeouts:    make(chan uint64, 1),
	}
}

// Timeouts returns the channel PingTimeout events are delivered on.
func (p *PingTimers) Timeouts() <-chan uint64 { return p.timeouts }

func (p *PingTimers) normalTimeout() time.Duration {
	return p.baseTimeout * time.Duration(p.awareness)
}

func (p *PingTimers) durationFor(kind pingTimerKind) time.Duration {
	return time.Duration(float64(p.normalTimeout()) * kind.multiplier())
}

func (p *PingTimers) start(sequence uint64, kind pingTimerKind) {
	timer := NewTimer(p.durationFor(kind), sequence, p.timeouts)
	p.entries[sequence] = pingTimerEntry{kind: kind, timer: timer}
}

// StartNormal installs a Normal timer (100% of awareness*base_timeout) for
// sequence. Used for direct and indirect probes.
func (p *PingTimers) StartNormal(sequence uint64) { p.start(sequence, pingTimerNormal) }

// StartNack installs a Nack timer (80% of the timeout) for sequence. Used
// for the first phase of an incoming ping-request.
func (p *PingTimers) StartNack(sequence uint64) { p.start(sequence, pingTimerNack) }

// StartGrace installs a Grace timer (20% of the timeout) for sequence.
// Used for the second phase of an incoming ping-request.
func (p *PingTimers) StartGrace(sequence uint64) { p.start(sequence, pingTimerGrace) }

// Remove cancels and forgets the timer for sequence, if any.
func (p *PingTimers) Remove(sequence uint64) {
	if entry, ok := p.entries[sequence]; ok {
		entry.timer.Stop()
		delete(p.entries, sequence)
	}
}

// UpdateAwareness rescales every pending timer to the new awareness score,
// recomputing its programmed duration while preserving elapsed progress
// (spec §4.5, §4.7).
func (p *PingTimers) UpdateAwareness(awareness uint32) {
	p.awareness = awareness

	for sequence, entry := range p.entries {
		d := p.durationFor(entry.kind)
		entry.timer.Reset(d, sequence, p.timeouts)
	}
}

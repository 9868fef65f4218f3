package swim

import (
	"math"
	"time"
)

// KillRequest is the payload of a SuspicionTimeout event: the address and
// incarnation a suspicion timer was started for (spec §4.7).
type KillRequest struct {
	Addr        Addr
	Incarnation uint64
}

// SuspicionConfig holds the Lifeguard suspicion-timeout parameters: alpha
// sets the baseline, beta sets the inflation, k sets how quickly confirming
// accusers accelerate the kill (spec §4.7, §6).
type SuspicionConfig struct {
	Alpha float64
	Beta  float64
	K     uint32
}

// timeoutCalculator computes the Lifeguard kill-timeout curve.
type timeoutCalculator struct {
	alpha float64
	beta  float64
	k     uint32
}

func newTimeoutCalculator(cfg SuspicionConfig) timeoutCalculator {
	return timeoutCalculator{alpha: cfg.Alpha, beta: cfg.Beta, k: cfg.K}
}

type suspicionState struct {
	pingInterval time.Duration
	nodeCount    uint32
}

// minMax computes min = ping_interval * max(1, alpha*log10(node_count)) and
// max = beta*min (spec §4.7).
func (tc timeoutCalculator) minMax(state suspicionState) (min, max time.Duration) {
	scale := math.Max(1, tc.alpha*math.Log10(float64(state.nodeCount)))
	min = time.Duration(float64(state.pingInterval) * scale)
	max = time.Duration(float64(min) * tc.beta)
	return min, max
}

// timeout computes timeout(min,max,c) = max(min, max - (max-min)*log10(c)/log10(k+1)),
// non-increasing in c and bounded below by min (spec §4.7, §8 property 8).
func (tc timeoutCalculator) timeout(min, max time.Duration, c uint32) time.Duration {
	minSecs := min.Seconds()
	maxSecs := max.Seconds()

	k := float64(tc.k + 1) // +1 ensures the divisor is never 0.
	frac := math.Log10(float64(c)) / math.Log10(k)
	f := maxSecs - (maxSecs-minSecs)*frac

	secs := math.Max(minSecs, f)
	millis := math.Floor(secs * 1000)

	return time.Duration(millis) * time.Millisecond
}

type suspicionEntry struct {
	timer      *Timer[KillRequest]
	req        KillRequest
	suspectors uint32
}

// SuspicionTimers owns one kill-deadline Timer per suspected address and
// delivers SuspicionTimeout(KillRequest) events through a single
// capacity-1 channel (spec §4.7, §5).
type SuspicionTimers struct {
	calc    timeoutCalculator
	state   suspicionState
	entries map[Addr]*suspicionEntry
	kills   chan KillRequest
}

// NewSuspicionTimers creates an empty SuspicionTimers using cfg for the
// kill-timeout curve, seeded with the current ping interval and node
// count. Call Timeouts() to obtain the event channel.
func NewSuspicionTimers(cfg SuspicionConfig, pingInterval time.Duration, nodeCount uint32) *SuspicionTimers {
	return &SuspicionTimers{
		calc:    newTimeoutCalculator(cfg),
		state:   suspicionState{pingInterval: pingInterval, nodeCount: nodeCount},
		entries: make(map[Addr]*suspicionEntry),
		kills:   make(chan KillRequest, 1),
	}
}

// Timeouts returns the channel SuspicionTimeout events are delivered on.
func (s *SuspicionTimers) Timeouts() <-chan KillRequest { return s.kills }

// Start installs a kill timer for req with an initial confirming-suspector
// count of 1.
func (s *SuspicionTimers) Start(req KillRequest) {
	min, max := s.calc.minMax(s.state)
	d := s.calc.timeout(min, max, 1)

	timer := NewTimer(d, req, s.kills)
	s.entries[req.Addr] = &suspicionEntry{timer: timer, req: req, suspectors: 1}
}

// Remove cancels and forgets the kill timer for addr, if any.
func (s *SuspicionTimers) Remove(addr Addr) {
	if entry, ok := s.entries[addr]; ok {
		entry.timer.Stop()
		delete(s.entries, addr)
	}
}

// UpdateSuspectors recomputes addr's deadline for the new confirming
// suspector count c and resets its timer, monotonically shortening the
// deadline as more accusers accumulate (floor is min). No-op if addr has
// no pending kill timer.
func (s *SuspicionTimers) UpdateSuspectors(addr Addr, c uint32) {
	entry, ok := s.entries[addr]
	if !ok {
		return
	}

	entry.suspectors = c

	min, max := s.calc.minMax(s.state)
	d := s.calc.timeout(min, max, c)
	entry.timer.Reset(d, entry.req, s.kills)
}

// UpdateNodeCount recomputes every outstanding timer's deadline for the new
// cluster size.
func (s *SuspicionTimers) UpdateNodeCount(nodeCount uint32) {
	s.state.nodeCount = nodeCount
	s.resetTimers()
}

// UpdatePingInterval recomputes every outstanding timer's deadline for the
// new ping interval.
func (s *SuspicionTimers) UpdatePingInterval(pingInterval time.Duration) {
	s.state.pingInterval = pingInterval
	s.resetTimers()
}

func (s *SuspicionTimers) resetTimers() {
	min, max := s.calc.minMax(s.state)
	for _, entry := range s.entries {
		d := s.calc.timeout(min, max, entry.suspectors)
		entry.timer.Reset(d, entry.req, s.kills)
	}
}

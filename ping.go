package swim

// pingKind discriminates the closed Ping sum type (spec §9 — "form a
// closed sum type; do not use subtyping"). It is unexported: callers
// interact with the tagged Ping through its constructors and the
// PingStore methods, never by constructing one directly.
type pingKind uint8

const (
	kindDirect pingKind = iota
	kindIndirect
	kindRequest
)

// RequestSource identifies the originator of a PingRequest: the sequence
// number it used to ask this node to probe a third party, and its address
// (spec §4.4, §6).
type RequestSource struct {
	Sequence uint64
	Addr     Addr
}

// ping is the internal representation of the Ping sum type.
type ping struct {
	kind pingKind

	// valid for kindDirect, kindIndirect
	addr Addr
	// valid for kindIndirect: accumulates helper nacks
	nacks map[Addr]struct{}

	// valid for kindRequest
	source RequestSource
	nacked bool
}

// PingTarget is returned by PingStore.Ping: the sequence number allocated
// for a new direct probe and the address it targets.
type PingTarget struct {
	Sequence uint64
	Addr     Addr
}

// PingRequestTarget is returned by PingStore.PingRequest: the sequence
// number allocated for an incoming probe-request and the third-party
// address to probe on the requester's behalf.
type PingRequestTarget struct {
	Sequence uint64
	Addr     Addr
}

// FailKind discriminates the directive returned by PingStore.Fail.
type FailKind uint8

const (
	// FailDoIndirect orders the caller to dispatch an indirect probe.
	FailDoIndirect FailKind = iota
	// FailSendNack orders the caller to send a nack upstream to Source
	// (the 80%-elapsed point of the Lifeguard nack protocol).
	FailSendNack
	// FailRequestFailed signals the complete failure of a ping-request
	// (the remaining 20% has elapsed); the caller drops it quietly.
	FailRequestFailed
	// FailNodeFailed signals the failure of an indirect probe: Addr
	// should now be suspected, and Nacks holds whichever helpers
	// reported they also could not reach it.
	FailNodeFailed
)

// FailResult is the directive PingStore.Fail returns for a given timed-out
// sequence number (spec §4.4).
type FailResult struct {
	Kind FailKind

	// valid for FailDoIndirect, FailNodeFailed
	Target PingTarget

	// valid for FailSendNack, FailRequestFailed
	Source RequestSource

	// valid for FailNodeFailed
	Nacks map[Addr]struct{}
}

// PingStore is the state machine over in-flight direct/indirect probes and
// probe-requests (spec §4.4). Sequence numbers are assigned strictly
// monotonically. It is not safe for concurrent use.
type PingStore struct {
	nextSequence  uint64
	bySequence    map[uint64]*ping
	inFlightAddrs map[Addr]struct{}
}

// NewPingStore creates an empty PingStore.
func NewPingStore() *PingStore {
	return &PingStore{
		bySequence:    make(map[uint64]*ping),
		inFlightAddrs: make(map[Addr]struct{}),
	}
}

func (p *PingStore) allocSequence() uint64 {
	seq := p.nextSequence
	p.nextSequence++
	return seq
}

// Ping allocates a new sequence and records a direct probe to addr. It
// refuses re-entry for an address which already has a direct or indirect
// probe in flight.
func (p *PingStore) Ping(addr Addr) (PingTarget, error) {
	if _, inFlight := p.inFlightAddrs[addr]; inFlight {
		return PingTarget{}, &AlreadyPingedError{Addr: addr}
	}

	seq := p.allocSequence()
	p.bySequence[seq] = &ping{kind: kindDirect, addr: addr}
	p.inFlightAddrs[addr] = struct{}{}

	return PingTarget{Sequence: seq, Addr: addr}, nil
}

// PingRequest allocates a new sequence and records an incoming request to
// probe target on behalf of source. target is not added to the in-flight
// set: this node is not the originator of the failure determination for
// target, only a helper (spec §4.4).
func (p *PingStore) PingRequest(source RequestSource, target Addr) PingRequestTarget {
	seq := p.allocSequence()
	p.bySequence[seq] = &ping{kind: kindRequest, source: source, nacked: false}

	return PingRequestTarget{Sequence: seq, Addr: target}
}

// AckKind describes the terminal-positive outcome returned by Ack.
type AckKind uint8

const (
	AckUnknown AckKind = iota
	AckDirect
	AckIndirect
	AckRequest
)

// AckResult is what PingStore.Ack found for a given sequence.
type AckResult struct {
	Kind AckKind

	// valid for AckDirect, AckIndirect
	Addr Addr

	// valid for AckRequest
	Source RequestSource
}

// Ack removes and returns the ping entry for sequence, if any. If it was a
// Direct or Indirect probe, the address is also removed from the in-flight
// set. This is the positive terminal transition (spec §4.4).
func (p *PingStore) Ack(sequence uint64) (AckResult, bool) {
	pg, ok := p.bySequence[sequence]
	if !ok {
		return AckResult{}, false
	}
	delete(p.bySequence, sequence)

	switch pg.kind {
	case kindDirect:
		delete(p.inFlightAddrs, pg.addr)
		return AckResult{Kind: AckDirect, Addr: pg.addr}, true
	case kindIndirect:
		delete(p.inFlightAddrs, pg.addr)
		return AckResult{Kind: AckIndirect, Addr: pg.addr}, true
	default: // kindRequest
		return AckResult{Kind: AckRequest, Source: pg.source}, true
	}
}

// NackResult is what PingStore.Nack found for a given sequence: the
// address the indirect ping targets and the fresh nack count.
type NackResult struct {
	Addr  Addr
	Count int
}

// Nack registers a nack from a helper for sequence. Only meaningful for an
// Indirect ping; inserts from into the nacks set and returns the new count
// if the insertion was fresh. Returns (NackResult{}, false) if there is no
// matching Indirect ping, or from had already nacked this sequence.
func (p *PingStore) Nack(sequence uint64, from Addr) (NackResult, bool) {
	pg, ok := p.bySequence[sequence]
	if !ok || pg.kind != kindIndirect {
		return NackResult{}, false
	}

	if pg.nacks == nil {
		pg.nacks = make(map[Addr]struct{})
	}
	if _, already := pg.nacks[from]; already {
		return NackResult{}, false
	}

	pg.nacks[from] = struct{}{}
	return NackResult{Addr: pg.addr, Count: len(pg.nacks)}, true
}

// Fail drives the timeout state machine for sequence, per the dispatch
// table in spec §4.4:
//
//   - Direct(addr)           -> remove, install Indirect(addr, {}), FailDoIndirect
//   - Request(source, false) -> re-insert as Request(source, true), FailSendNack
//   - Request(source, true)  -> remove, FailRequestFailed
//   - Indirect(addr, nacks)  -> remove (and addr from in-flight), FailNodeFailed
//
// Returns (FailResult{}, false) if sequence has no entry (already acked,
// already failed, or never existed).
func (p *PingStore) Fail(sequence uint64) (FailResult, bool) {
	pg, ok := p.bySequence[sequence]
	if !ok {
		return FailResult{}, false
	}

	switch {
	case pg.kind == kindRequest && pg.nacked:
		delete(p.bySequence, sequence)
		return FailResult{Kind: FailRequestFailed, Source: pg.source}, true

	case pg.kind == kindRequest && !pg.nacked:
		pg.nacked = true
		return FailResult{Kind: FailSendNack, Source: pg.source}, true

	case pg.kind == kindDirect:
		delete(p.bySequence, sequence)
		newSeq := p.allocSequence()
		p.bySequence[newSeq] = &ping{kind: kindIndirect, addr: pg.addr, nacks: make(map[Addr]struct{})}
		return FailResult{Kind: FailDoIndirect, Target: PingTarget{Sequence: newSeq, Addr: pg.addr}}, true

	default: // kindIndirect
		delete(p.bySequence, sequence)
		delete(p.inFlightAddrs, pg.addr)
		return FailResult{Kind: FailNodeFailed, Target: PingTarget{Addr: pg.addr}, Nacks: pg.nacks}, true
	}
}

// Clear removes every in-flight ping and in-flight address.
func (p *PingStore) Clear() {
	p.bySequence = make(map[uint64]*ping)
	p.inFlightAddrs = make(map[Addr]struct{})
}

// PingCounts returns the number of currently ongoing Direct, Indirect and
// Request pings, in that order.
func (p *PingStore) PingCounts() (direct, indirect, request int) {
	for _, pg := range p.bySequence {
		switch pg.kind {
		case kindDirect:
			direct++
		case kindIndirect:
			indirect++
		case kindRequest:
			request++
		}
	}
	return direct, indirect, request
}

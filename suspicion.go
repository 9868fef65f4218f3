package swim

// Suspicion is the per-address record of who has accused a node of being
// unreachable, and at what incarnation the accusation applies (spec §3).
// The invariant is that Suspectors is never empty while the entry exists.
type Suspicion struct {
	Incarnation uint64
	Suspectors  map[Addr]struct{}
}

// SuspicionOutcome describes what Suspicions.Suspect did.
type SuspicionOutcome uint8

const (
	// SuspicionNone means the call was ignored: the provided incarnation
	// was stale relative to the stored one.
	SuspicionNone SuspicionOutcome = iota
	// SuspicionNew means a new Suspicion entry was created.
	SuspicionNew
	// SuspicionReset means the stored entry was replaced because a
	// higher incarnation was observed.
	SuspicionReset
	// SuspicionUpdate means the suspector was added to the existing
	// entry's set (idempotently).
	SuspicionUpdate
)

// Suspicions is the address-keyed table of in-progress suspicions (spec
// §4.3). It is not safe for concurrent use.
type Suspicions struct {
	entries map[Addr]*Suspicion
}

// NewSuspicions creates an empty Suspicions table.
func NewSuspicions() *Suspicions {
	return &Suspicions{entries: make(map[Addr]*Suspicion)}
}

// Suspect records that suspector accuses addr of being unreachable at the
// given incarnation. It returns the outcome and, for SuspicionUpdate, the
// resulting suspector count (duplicate suspectors do not inflate the
// count, per the set semantics in spec §4.3).
func (s *Suspicions) Suspect(addr Addr, incarnation uint64, suspector Addr) (SuspicionOutcome, int) {
	entry, ok := s.entries[addr]
	if !ok {
		s.entries[addr] = &Suspicion{
			Incarnation: incarnation,
			Suspectors:  map[Addr]struct{}{suspector: {}},
		}
		return SuspicionNew, 1
	}

	switch {
	case incarnation < entry.Incarnation:
		return SuspicionNone, 0
	case incarnation > entry.Incarnation:
		entry.Incarnation = incarnation
		entry.Suspectors = map[Addr]struct{}{suspector: {}}
		return SuspicionReset, 1
	default:
		entry.Suspectors[suspector] = struct{}{}
		return SuspicionUpdate, len(entry.Suspectors)
	}
}

// Get returns the Suspicion entry for addr, if any.
func (s *Suspicions) Get(addr Addr) (*Suspicion, bool) {
	entry, ok := s.entries[addr]
	return entry, ok
}

// Remove deletes and returns the Suspicion entry for addr, if any, so the
// caller can inspect the final suspector count before discarding it.
func (s *Suspicions) Remove(addr Addr) (*Suspicion, bool) {
	entry, ok := s.entries[addr]
	if ok {
		delete(s.entries, addr)
	}
	return entry, ok
}

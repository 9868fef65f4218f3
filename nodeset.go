package swim

import "math/rand"

// InsertResult describes the outcome of NodeSet.Insert.
type InsertResult uint8

const (
	// Inserted means the address was not previously present.
	Inserted InsertResult = iota
	// Updated means the proposed state was strictly greater than the
	// stored one and replaced it.
	Updated
	// Equal means the proposed state compared equal to the stored one;
	// nothing changed.
	Equal
	// Unchanged means the proposed state was strictly less than the
	// stored one and was discarded.
	Unchanged
)

// Counts is the per-tag population of a NodeSet, in Alive/Suspect/Dead/Left
// order.
type Counts struct {
	Alive, Suspect, Dead, Left int
}

// Total returns the sum of all counts.
func (c Counts) Total() int { return c.Alive + c.Suspect + c.Dead + c.Left }

// Active returns the number of non-Left nodes, i.e. the population that
// participates in probe traversal.
func (c Counts) Active() int { return c.Alive + c.Suspect + c.Dead }

// NodeSet is an address-keyed membership map plus a shuffled traversal
// stack that yields each active node's address exactly once per round
// (spec §4.2). The stack is refilled and reshuffled from the map whenever
// it runs dry ("shuffle the member list when a full round completes").
//
// NodeSet is not safe for concurrent use; per spec §5, all core tables are
// confined to a single engine goroutine.
type NodeSet struct {
	members map[Addr]Node
	stack   []Addr
	rng     *rand.Rand
}

// NewNodeSet creates an empty NodeSet using rng for traversal shuffling.
// rng must not be shared with other goroutines (spec §5, §9 — the PRNG is
// injectable to make traversal deterministic under test).
func NewNodeSet(rng *rand.Rand) *NodeSet {
	return &NodeSet{
		members: make(map[Addr]Node),
		rng:     rng,
	}
}

// Len returns the total number of nodes, including Left ones.
func (s *NodeSet) Len() int { return len(s.members) }

// Contains reports whether addr is present.
func (s *NodeSet) Contains(addr Addr) bool {
	_, ok := s.members[addr]
	return ok
}

// Get returns the Node stored at addr, if any.
func (s *NodeSet) Get(addr Addr) (Node, bool) {
	n, ok := s.members[addr]
	return n, ok
}

// Remove deletes and returns the Node at addr, if any.
func (s *NodeSet) Remove(addr Addr) (Node, bool) {
	n, ok := s.members[addr]
	if ok {
		delete(s.members, addr)
	}
	return n, ok
}

// Insert merges node into the set. If no entry exists for node.Addr it is
// inserted unconditionally (Inserted). Otherwise the proposed state is
// compared against the stored one: strictly greater replaces the entry
// (Updated), strictly less is discarded (Unchanged), and equal leaves the
// entry untouched (Equal).
func (s *NodeSet) Insert(node Node) InsertResult {
	current, ok := s.members[node.Addr]
	if !ok {
		s.members[node.Addr] = node
		return Inserted
	}

	switch c := node.State.Compare(current.State); {
	case c < 0:
		return Unchanged
	case c == 0:
		return Equal
	default:
		s.members[node.Addr] = node
		return Updated
	}
}

// Counts returns the population grouped by tag.
func (s *NodeSet) Counts() Counts {
	var c Counts
	for _, n := range s.members {
		switch n.State.Tag() {
		case TagAlive:
			c.Alive++
		case TagSuspect:
			c.Suspect++
		case TagDead:
			c.Dead++
		case TagLeft:
			c.Left++
		}
	}
	return c
}

// Snapshot returns a copy of the full address->Node map, for use by a Sync
// push-pull exchange (spec §4.8, §6).
func (s *NodeSet) Snapshot() map[Addr]Node {
	out := make(map[Addr]Node, len(s.members))
	for addr, n := range s.members {
		out[addr] = n.Clone()
	}
	return out
}

// pop returns the top of the traversal stack, refilling and reshuffling it
// from the current map if empty. Returns false if the map has no active
// (non-Left) node at all, even after a refill.
func (s *NodeSet) pop() (Addr, bool) {
	for {
		if n := len(s.stack); n > 0 {
			addr := s.stack[n-1]
			s.stack = s.stack[:n-1]
			return addr, true
		}

		s.refillStack()

		if len(s.stack) == 0 {
			return "", false
		}
	}
}

// refillStack rebuilds the traversal stack from the current map, excluding
// Left nodes, and shuffles it with the injected PRNG.
func (s *NodeSet) refillStack() {
	stack := make([]Addr, 0, len(s.members))
	for addr, n := range s.members {
		if n.State.Tag() == TagLeft {
			continue
		}
		stack = append(stack, addr)
	}

	s.rng.Shuffle(len(stack), func(i, j int) {
		stack[i], stack[j] = stack[j], stack[i]
	})

	s.stack = stack
}

// NodeIter yields each active (non-Left) address present in a NodeSet
// exactly once per round, in semi-random order. Addresses removed from the
// underlying NodeSet mid-iteration are skipped rather than yielded.
type NodeIter struct {
	src      *NodeSet
	visited  map[Addr]struct{}
	next     Addr
	hasNext  bool
	activeAt int
}

// UniqueRandomAddrs returns an iterator over every currently present
// non-Left address, each exactly once, or false if the set currently has
// no active node (spec §4.2, property 4).
func (s *NodeSet) UniqueRandomAddrs() (*NodeIter, bool) {
	var first Addr
	for {
		addr, ok := s.pop()
		if !ok {
			return nil, false
		}
		if s.Contains(addr) {
			first = addr
			break
		}
	}

	active := s.Counts().Active()
	visited := make(map[Addr]struct{}, active)
	visited[first] = struct{}{}

	return &NodeIter{
		src:      s,
		visited:  visited,
		next:     first,
		hasNext:  true,
		activeAt: active,
	}, true
}

// Next returns the next address and true, or ("", false) once every active
// address has been yielded for this round.
func (it *NodeIter) Next() (Addr, bool) {
	if !it.hasNext {
		return "", false
	}
	result := it.next
	it.hasNext = false

	for {
		addr, ok := it.src.pop()
		if !ok {
			break
		}

		if !it.src.Contains(addr) {
			continue
		}

		if _, seen := it.visited[addr]; !seen {
			it.visited[addr] = struct{}{}
			it.next = addr
			it.hasNext = true
			break
		}

		if len(it.visited) >= it.activeAt {
			break
		}
	}

	return result, true
}

package swim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeSetInsertResults(t *testing.T) {
	s := NewNodeSet(rand.New(rand.NewSource(1)))

	assert.Equal(t, Inserted, s.Insert(Node{Addr: "a", State: Alive(1)}))
	assert.Equal(t, Equal, s.Insert(Node{Addr: "a", State: Alive(1)}))
	assert.Equal(t, Unchanged, s.Insert(Node{Addr: "a", State: Alive(0)}))
	assert.Equal(t, Updated, s.Insert(Node{Addr: "a", State: Suspect(1)}))

	n, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, Suspect(1), n.State)
}

func TestNodeSetCounts(t *testing.T) {
	s := NewNodeSet(rand.New(rand.NewSource(1)))
	s.Insert(Node{Addr: "a", State: Alive(1)})
	s.Insert(Node{Addr: "b", State: Suspect(1)})
	s.Insert(Node{Addr: "c", State: Dead(1)})
	s.Insert(Node{Addr: "d", State: Left})

	c := s.Counts()
	assert.Equal(t, Counts{Alive: 1, Suspect: 1, Dead: 1, Left: 1}, c)
	assert.Equal(t, 4, c.Total())
	assert.Equal(t, 3, c.Active())
}

func TestNodeSetUniqueRandomAddrsCoversEachActiveNodeOnce(t *testing.T) {
	s := NewNodeSet(rand.New(rand.NewSource(42)))
	s.Insert(Node{Addr: "a", State: Alive(1)})
	s.Insert(Node{Addr: "b", State: Alive(1)})
	s.Insert(Node{Addr: "c", State: Alive(1)})
	s.Insert(Node{Addr: "left", State: Left})

	it, ok := s.UniqueRandomAddrs()
	require.True(t, ok)

	seen := map[Addr]int{}
	for {
		addr, ok := it.Next()
		if !ok {
			break
		}
		seen[addr]++
	}

	assert.Equal(t, 3, len(seen))
	assert.NotContains(t, seen, Addr("left"))
	for addr, count := range seen {
		assert.Equal(t, 1, count, "address %s must be yielded exactly once per round", addr)
	}
}

func TestNodeSetUniqueRandomAddrsEmpty(t *testing.T) {
	s := NewNodeSet(rand.New(rand.NewSource(1)))
	_, ok := s.UniqueRandomAddrs()
	assert.False(t, ok)

	s.Insert(Node{Addr: "only-left", State: Left})
	_, ok = s.UniqueRandomAddrs()
	assert.False(t, ok)
}

func TestNodeSetRemoveAndSnapshot(t *testing.T) {
	s := NewNodeSet(rand.New(rand.NewSource(1)))
	s.Insert(Node{Addr: "a", State: Alive(1), Metadata: []byte("x")})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	n := snap["a"]
	n.Metadata[0] = 'y'
	orig, _ := s.Get("a")
	assert.Equal(t, byte('x'), orig.Metadata[0], "Snapshot must deep-copy metadata")

	removed, ok := s.Remove("a")
	require.True(t, ok)
	assert.Equal(t, Addr("a"), removed.Addr)
	assert.False(t, s.Contains("a"))
}

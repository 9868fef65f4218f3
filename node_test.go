package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeStateCompare(t *testing.T) {
	assert.True(t, Left.Compare(Alive(1000000000)) > 0, "Left outranks every non-Left state")
	assert.True(t, Dead(1).Compare(Suspect(1)) > 0)
	assert.True(t, Suspect(1).Compare(Alive(1)) > 0)
	assert.True(t, Alive(2).Compare(Dead(1)) > 0, "higher incarnation always wins")
	assert.Equal(t, 0, Alive(5).Compare(Alive(5)))
	assert.Equal(t, 0, Left.Compare(Left))
}

func TestNodeStateMutations(t *testing.T) {
	s := Alive(3)
	require.NoError(t, s.SuspectState())
	assert.Equal(t, Suspect(3), s)

	require.ErrorIs(t, s.SuspectState(), ErrSuspect, "cannot suspect a non-Alive state")

	require.NoError(t, s.Kill())
	assert.Equal(t, Dead(3), s)
	require.ErrorIs(t, s.Kill(), ErrKill)

	assert.True(t, s.SuspectIfDead())
	assert.Equal(t, Suspect(3), s)
	assert.False(t, s.SuspectIfDead(), "only Dead downgrades to Suspect")

	require.NoError(t, s.Leave())
	assert.Equal(t, Left, s)
	require.ErrorIs(t, s.Leave(), ErrLeave)
}

func TestNodeStateReincarnate(t *testing.T) {
	s := Suspect(7)
	s.Reincarnate()
	assert.Equal(t, Alive(8), s)

	left := Left
	left.Reincarnate()
	assert.Equal(t, Left, left, "Left has no incarnation to bump")
}

package swim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingStoreDirectAckHappyPath(t *testing.T) {
	p := NewPingStore()

	target, err := p.Ping("a")
	require.NoError(t, err)

	_, err = p.Ping("a")
	assert.Error(t, err, "re-entrant ping to an already in-flight address is rejected")

	result, ok := p.Ack(target.Sequence)
	require.True(t, ok)
	assert.Equal(t, AckDirect, result.Kind)
	assert.Equal(t, Addr("a"), result.Addr)

	// in-flight slot freed
	_, err = p.Ping("a")
	assert.NoError(t, err)
}

func TestPingStoreDirectTimeoutBecomesIndirect(t *testing.T) {
	p := NewPingStore()
	target, err := p.Ping("a")
	require.NoError(t, err)

	result, ok := p.Fail(target.Sequence)
	require.True(t, ok)
	assert.Equal(t, FailDoIndirect, result.Kind)
	assert.Equal(t, Addr("a"), result.Target.Addr)
	assert.NotEqual(t, target.Sequence, result.Target.Sequence, "the indirect phase gets a fresh sequence")

	// the original direct sequence no longer resolves
	_, ok = p.Ack(target.Sequence)
	assert.False(t, ok)

	ackResult, ok := p.Ack(result.Target.Sequence)
	require.True(t, ok)
	assert.Equal(t, AckIndirect, ackResult.Kind)
}

func TestPingStoreIndirectNackThenFail(t *testing.T) {
	p := NewPingStore()
	target, _ := p.Ping("a")
	failResult, _ := p.Fail(target.Sequence)
	indirectSeq := failResult.Target.Sequence

	nr, ok := p.Nack(indirectSeq, "helper1")
	require.True(t, ok)
	assert.Equal(t, Addr("a"), nr.Addr)
	assert.Equal(t, 1, nr.Count)

	_, ok = p.Nack(indirectSeq, "helper1")
	assert.False(t, ok, "duplicate nack from the same helper is not fresh")

	nr, ok = p.Nack(indirectSeq, "helper2")
	require.True(t, ok)
	assert.Equal(t, 2, nr.Count)

	final, ok := p.Fail(indirectSeq)
	require.True(t, ok)
	assert.Equal(t, FailNodeFailed, final.Kind)
	assert.Len(t, final.Nacks, 2)
}

func TestPingStoreRequestNackGraceThenFail(t *testing.T) {
	p := NewPingStore()
	source := RequestSource{Sequence: 9, Addr: "origin"}
	rt := p.PingRequest(source, "target")

	first, ok := p.Fail(rt.Sequence)
	require.True(t, ok)
	assert.Equal(t, FailSendNack, first.Kind)
	assert.Equal(t, source, first.Source)

	second, ok := p.Fail(rt.Sequence)
	require.True(t, ok)
	assert.Equal(t, FailRequestFailed, second.Kind)
	assert.Equal(t, source, second.Source)

	_, ok = p.Fail(rt.Sequence)
	assert.False(t, ok, "the entry is gone after the grace phase resolves")
}

func TestPingStoreAckRequestForwardsSource(t *testing.T) {
	p := NewPingStore()
	source := RequestSource{Sequence: 3, Addr: "origin"}
	rt := p.PingRequest(source, "target")

	result, ok := p.Ack(rt.Sequence)
	require.True(t, ok)
	assert.Equal(t, AckRequest, result.Kind)
	assert.Equal(t, source, result.Source)
}

func TestPingStorePingCounts(t *testing.T) {
	p := NewPingStore()
	p.Ping("a")
	p.Ping("b")
	p.PingRequest(RequestSource{Sequence: 1, Addr: "x"}, "c")

	direct, indirect, request := p.PingCounts()
	assert.Equal(t, 2, direct)
	assert.Equal(t, 0, indirect)
	assert.Equal(t, 1, request)
}

func TestPingStoreClear(t *testing.T) {
	p := NewPingStore()
	p.Ping("a")
	p.Clear()

	direct, indirect, request := p.PingCounts()
	assert.Zero(t, direct+indirect+request)

	_, err := p.Ping("a")
	assert.NoError(t, err, "Clear frees every in-flight address")
}

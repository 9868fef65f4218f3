package swim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport stub: every Send* call is
// recorded rather than put on a wire, so engine-internal tests can drive
// the handler methods directly and assert on what the engine tried to
// send.
type fakeTransport struct {
	mu    sync.Mutex
	inbox chan Inbound

	acksSent     []PingTarget
	nacksSent    []PingTarget
	pingsSent    []Addr
	requestsSent []Addr
	syncResponse map[Addr]Node
	syncErr      error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan Inbound, 16)}
}

func (f *fakeTransport) Inbound() <-chan Inbound { return f.inbox }

func (f *fakeTransport) SendPing(ctx context.Context, to Addr, seq uint64, piggyback []StateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingsSent = append(f.pingsSent, to)
	return nil
}

func (f *fakeTransport) SendAck(ctx context.Context, to Addr, seq uint64, piggyback []StateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acksSent = append(f.acksSent, PingTarget{Addr: to, Sequence: seq})
	return nil
}

func (f *fakeTransport) SendPingRequest(ctx context.Context, to Addr, seq uint64, target Addr, piggyback []StateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestsSent = append(f.requestsSent, to)
	return nil
}

func (f *fakeTransport) SendIndirectPing(ctx context.Context, to Addr, seq uint64, target Addr, piggyback []StateUpdate) error {
	return nil
}

func (f *fakeTransport) SendNack(ctx context.Context, to Addr, seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacksSent = append(f.nacksSent, PingTarget{Addr: to, Sequence: seq})
	return nil
}

func (f *fakeTransport) Gossip(ctx context.Context, to []Addr, updates []StateUpdate) error { return nil }

func (f *fakeTransport) Sync(ctx context.Context, to Addr, local map[Addr]Node) (map[Addr]Node, error) {
	return f.syncResponse, f.syncErr
}

// fakeQueue is an in-memory BroadcastQueue stub that just remembers every
// pushed update, with no retransmit-count expiry, for assertions.
type fakeQueue struct {
	mu      sync.Mutex
	pushed  []StateUpdate
}

func (q *fakeQueue) Push(update StateUpdate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, update)
}

func (q *fakeQueue) Take(n int, budgetBytes int) []StateUpdate { return nil }

// recordingEvents captures every NodeChanged/Suspected/DeclaredDead/Removed
// callback for assertions, leaving every other callback a no-op.
type recordingEvents struct {
	NullEventHandler
	mu           sync.Mutex
	changes      []Node
	causes       []Cause
	suspectedBy  []Addr
	declaredDead []Addr
	removed      []Node
}

func (r *recordingEvents) NodeChanged(n Node, c Cause) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, n)
	r.causes = append(r.causes, c)
}

func (r *recordingEvents) Suspected(by Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspectedBy = append(r.suspectedBy, by)
}

func (r *recordingEvents) DeclaredDead(by Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declaredDead = append(r.declaredDead, by)
}

func (r *recordingEvents) Removed(n Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, n)
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *fakeQueue, *recordingEvents) {
	t.Helper()
	cfg := DefaultLoopbackConfig()
	cfg.Node.BindAddr = "self:7946"
	cfg.Node.AdvertiseAddr = "self:7946"

	transport := newFakeTransport()
	queue := &fakeQueue{}
	events := &recordingEvents{}

	e := NewEngine(cfg, transport, queue, events)
	t.Cleanup(func() {
		e.scheduler.Stop()
		e.reclaim.Stop()
	})

	return e, transport, queue, events
}

func TestEngineDirectPingAckRevivesDeadNode(t *testing.T) {
	e, transport, _, events := newTestEngine(t)
	ctx := context.Background()

	e.nodes.Insert(Node{Addr: "peer", State: Dead(1)})

	target, err := e.pings.Ping("peer")
	require.NoError(t, err)

	e.handleAck(ctx, "peer", target.Sequence)

	n, ok := e.nodes.Get("peer")
	require.True(t, ok)
	assert.Equal(t, TagSuspect, n.State.Tag(), "an ack from a believed-dead node downgrades it to suspect, not alive")

	require.Len(t, events.changes, 1)
	assert.Equal(t, CauseUpdate, events.causes[0])
	_ = transport
}

func TestEnginePingTimeoutWithNoHelpersSuspectsDirectly(t *testing.T) {
	e, _, queue, events := newTestEngine(t)
	ctx := context.Background()

	e.nodes.Insert(Node{Addr: "peer", State: Alive(1)})

	target, err := e.pings.Ping("peer")
	require.NoError(t, err)

	e.handlePingTimeout(ctx, target.Sequence)

	failResult, ok := e.pings.Fail(99999)
	_ = failResult
	assert.False(t, ok)

	n, ok := e.nodes.Get("peer")
	require.True(t, ok)
	assert.Equal(t, TagSuspect, n.State.Tag(), "no helpers to ask means the indirect round is treated as an immediate failure")

	require.NotEmpty(t, events.changes)
	assert.Equal(t, CauseSuspicion, events.causes[len(events.causes)-1])

	require.NotEmpty(t, queue.pushed)
	last := queue.pushed[len(queue.pushed)-1]
	assert.Equal(t, Addr("peer"), last.Addr)
	assert.Equal(t, TagSuspect, last.State.Tag())
}

func TestEngineSuspicionTimeoutKillsOnMatchingIncarnation(t *testing.T) {
	e, _, queue, events := newTestEngine(t)

	e.nodes.Insert(Node{Addr: "peer", State: Suspect(3)})
	e.scheduler.SuspicionTimers().Start(KillRequest{Addr: "peer", Incarnation: 3})

	e.handleSuspicionTimeout(KillRequest{Addr: "peer", Incarnation: 3})

	n, ok := e.nodes.Get("peer")
	require.True(t, ok)
	assert.Equal(t, TagDead, n.State.Tag())
	assert.Equal(t, CauseDeath, events.causes[len(events.causes)-1])

	last := queue.pushed[len(queue.pushed)-1]
	assert.Equal(t, TagDead, last.State.Tag())
}

func TestEngineSuspicionTimeoutIgnoresStaleIncarnation(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	e.nodes.Insert(Node{Addr: "peer", State: Suspect(5)})

	e.handleSuspicionTimeout(KillRequest{Addr: "peer", Incarnation: 3})

	n, ok := e.nodes.Get("peer")
	require.True(t, ok)
	assert.Equal(t, TagSuspect, n.State.Tag(), "a suspicion timer armed for a superseded incarnation must not kill the current one")
}

func TestEngineHandleUpdateIgnoresPhantomEmptyAddr(t *testing.T) {
	e, _, queue, events := newTestEngine(t)

	// A standalone KindUpdate gossip frame carries its batch only in
	// Piggybacks; Update is left at its zero value (empty Addr, which
	// decodes to Alive(0)). It must never be merged as a real member.
	e.handleInbound(context.Background(), Inbound{
		Kind:       InboundUpdate,
		Piggybacks: []StateUpdate{{Addr: "real-peer", State: Alive(1)}},
	})

	assert.False(t, e.nodes.Contains(""), "an empty-address update must never become a NodeSet entry")
	assert.True(t, e.nodes.Contains("real-peer"), "legitimate piggybacked updates still merge")

	require.Len(t, events.changes, 1)
	assert.Equal(t, Addr("real-peer"), events.changes[0].Addr)
	for _, u := range queue.pushed {
		assert.NotEqual(t, Addr(""), u.Addr, "the phantom empty-address update must never be re-gossiped")
	}
}

func TestEngineRequestMembershipServesFromRunGoroutine(t *testing.T) {
	e, transport, _, _ := newTestEngine(t)
	e.nodes.Insert(Node{Addr: "peer", State: Alive(1)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- e.Run(ctx) }()

	members, err := e.RequestMembership(ctx)
	require.NoError(t, err)
	assert.Contains(t, members, Addr("peer"))

	cancel()
	<-runDone
	_ = transport
}

func TestEngineRequestMembershipTimesOutIfRunIsNotDraining(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Run is never started, so nothing answers membershipReq; the call
	// must return ctx's error rather than block forever.
	_, err := e.RequestMembership(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngineSelfRefutationReincarnatesOnSuspicion(t *testing.T) {
	e, _, queue, events := newTestEngine(t)

	_, before := e.Self()
	incarnation, _ := before.Incarnation()

	e.handleInbound(context.Background(), Inbound{
		Kind: InboundUpdate,
		Update: StateUpdate{
			Addr:  e.self,
			State: Suspect(incarnation),
			From:  "accuser",
		},
	})

	_, after := e.Self()
	newIncarnation, _ := after.Incarnation()
	assert.Equal(t, TagAlive, after.Tag())
	assert.Equal(t, incarnation+1, newIncarnation)

	require.Len(t, events.suspectedBy, 1)
	assert.Equal(t, Addr("accuser"), events.suspectedBy[0])

	last := queue.pushed[len(queue.pushed)-1]
	assert.Equal(t, e.self, last.Addr)
	assert.Equal(t, Alive(incarnation+1), last.State)
}

func TestEngineSelfRefutationIgnoresStaleClaim(t *testing.T) {
	e, _, queue, _ := newTestEngine(t)
	_, before := e.Self()
	incarnation, _ := before.Incarnation()

	// Reincarnate once so the current incarnation is ahead of a stale
	// accusation targeting the original one.
	e.handleInbound(context.Background(), Inbound{
		Kind:   InboundUpdate,
		Update: StateUpdate{Addr: e.self, State: Suspect(incarnation), From: "accuser1"},
	})
	pushedAfterFirst := len(queue.pushed)

	e.handleInbound(context.Background(), Inbound{
		Kind:   InboundUpdate,
		Update: StateUpdate{Addr: e.self, State: Suspect(incarnation), From: "accuser2"},
	})

	assert.Equal(t, pushedAfterFirst, len(queue.pushed), "a stale-incarnation self-accusation triggers no second reincarnation")
}

func TestEngineReapEvictsAfterDeadAfter(t *testing.T) {
	e, _, _, events := newTestEngine(t)
	e.cfg.Reclaim.DeadAfter = time.Millisecond

	e.nodes.Insert(Node{Addr: "peer", State: Dead(1)})
	e.deadAt["peer"] = time.Now().Add(-time.Hour)

	e.reap()

	assert.False(t, e.nodes.Contains("peer"))
	require.Len(t, events.removed, 1)
	assert.Equal(t, Addr("peer"), events.removed[0].Addr)
}

func TestEngineJoinMergesSeedSnapshot(t *testing.T) {
	e, transport, _, _ := newTestEngine(t)
	transport.syncResponse = map[Addr]Node{
		"seed": {Addr: "seed", State: Alive(1)},
		"peer": {Addr: "peer", State: Alive(1)},
	}

	err := e.Join(context.Background(), []Addr{"seed"})
	require.NoError(t, err)

	assert.True(t, e.nodes.Contains("seed"))
	assert.True(t, e.nodes.Contains("peer"))
	assert.Equal(t, 3, e.ClusterSize(), "2 known members plus self")
}

func TestEngineLeaveBroadcastsLeft(t *testing.T) {
	e, _, queue, events := newTestEngine(t)
	e.Leave()

	_, state := e.Self()
	assert.Equal(t, Left, state)
	require.NotEmpty(t, queue.pushed)
	assert.Equal(t, Left, queue.pushed[len(queue.pushed)-1].State)
	_ = events
}

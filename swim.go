package swim

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// Engine is the membership protocol's single-goroutine orchestrator: it
// owns every core table (NodeSet, Suspicions, PingStore, Awareness) and
// the Scheduler that drives them, and is the only thing permitted to
// mutate them (spec §5). The handlers that mutate these tables are
// private and are called from the Run loop (and, through Join, before Run
// starts); the exported surface is Run, Join, Leave and the accessors
// Snapshot, Membership, RequestMembership, ClusterSize and Self.
//
// Grounded on the teacher's SWIM struct and its handle/handlePbk/
// pingHandler dispatch skeleton, generalized to the fuller event surface
// named in spec §4.8, and on the probe-loop/select idiom of
// other_examples' beenet swim.go.
type Engine struct {
	cfg Config

	self         Addr
	selfState    NodeState
	selfMetadata []byte

	awareness  *Awareness
	nodes      *NodeSet
	suspicions *Suspicions
	pings      *PingStore
	scheduler  *Scheduler

	transport Transport
	queue     BroadcastQueue
	events    EventHandler

	rng *rand.Rand

	pingIter *NodeIter
	deadAt   map[Addr]time.Time

	reclaim *time.Ticker

	membershipReq chan membershipRequest
}

// membershipRequest is how a collaborator running on another goroutine
// (e.g. wire.Transport's TCP accept loop, answering an inbound Sync) asks
// the engine for a membership snapshot without touching NodeSet itself
// (spec §5): it is answered from inside Run's select, the same way
// serveSync feeds synced updates back through Inbound instead of mutating
// engine state directly.
type membershipRequest struct {
	reply chan map[Addr]Node
}

// NewEngine wires cfg, transport, queue and events into a ready-to-run
// Engine, seeded as the sole member of a cluster of one.
func NewEngine(cfg Config, transport Transport, queue BroadcastQueue, events EventHandler) *Engine {
	if events == nil {
		events = NullEventHandler{}
	}

	rng := rand.New(rand.NewSource(1))

	schedCfg := SchedulerConfig{
		Ping:               cfg.PingTimes,
		Sync:               cfg.SyncTimes,
		BaseGossipInterval: cfg.GossipInt,
		Suspicion:          cfg.Suspicion,
	}

	e := &Engine{
		cfg:           cfg,
		self:          cfg.Node.AdvertiseAddr,
		selfState:     Alive(cfg.Node.State.InitialIncarnation),
		selfMetadata:  cfg.Node.State.Metadata,
		awareness:     NewAwareness(cfg.Awareness.Max),
		nodes:         NewNodeSet(rng),
		suspicions:    NewSuspicions(),
		pings:         NewPingStore(),
		scheduler:     NewScheduler(schedCfg, 1),
		transport:     transport,
		queue:         queue,
		events:        events,
		rng:           rng,
		deadAt:        make(map[Addr]time.Time),
		membershipReq: make(chan membershipRequest),
	}

	reclaimEvery := cfg.Reclaim.DeadAfter
	if cfg.Reclaim.LeftAfter < reclaimEvery {
		reclaimEvery = cfg.Reclaim.LeftAfter
	}
	reclaimEvery /= 10
	if reclaimEvery < time.Second {
		reclaimEvery = time.Second
	}
	e.reclaim = time.NewTicker(reclaimEvery)

	return e
}

// nodeCount returns the cluster size used to scale the sync interval and
// suspicion-timeout curve: every known member plus this node itself.
func (e *Engine) nodeCount() uint32 {
	return uint32(e.nodes.Len()) + 1
}

// Run drives the engine until ctx is cancelled, multiplexing scheduler
// events and inbound transport frames onto a single select (spec §5).
func (e *Engine) Run(ctx context.Context) error {
	defer e.events.Stopped()
	defer e.scheduler.Stop()
	defer e.reclaim.Stop()

	schedEvents := make(chan SchedulerEvent)
	go func() {
		for {
			evt, ok := e.scheduler.Next(ctx)
			if !ok {
				return
			}
			select {
			case schedEvents <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt := <-schedEvents:
			e.handleSchedulerEvent(ctx, evt)

		case in := <-e.transport.Inbound():
			e.handleInbound(ctx, in)

		case req := <-e.membershipReq:
			req.reply <- e.Membership()

		case <-e.reclaim.C:
			e.reap()
		}
	}
}

func (e *Engine) handleSchedulerEvent(ctx context.Context, evt SchedulerEvent) {
	switch evt.Kind {
	case EventPingInterval:
		e.handlePingInterval(ctx)
	case EventGossipInterval:
		e.handleGossipInterval(ctx)
	case EventSyncInterval:
		e.handleSyncInterval(ctx)
	case EventPingTimeout:
		e.handlePingTimeout(ctx, evt.PingTimeoutSeq)
	case EventSuspicionTimeout:
		e.handleSuspicionTimeout(evt.SuspicionTimeoutReq)
	}
}

// ---- piggyback helper ----

func (e *Engine) piggyback() []StateUpdate {
	n := e.cfg.Broadcast.Multiplier
	if n <= 0 {
		n = 1
	}
	return e.queue.Take(n, e.cfg.Broadcast.FreeBytes)
}

// ---- ping interval ----

func (e *Engine) nextPingAddr() (Addr, bool) {
	if e.pingIter == nil {
		it, ok := e.nodes.UniqueRandomAddrs()
		if !ok {
			return "", false
		}
		e.pingIter = it
	}

	addr, ok := e.pingIter.Next()
	if !ok {
		e.pingIter = nil
		return e.nextPingAddr()
	}
	return addr, true
}

func (e *Engine) handlePingInterval(ctx context.Context) {
	addr, ok := e.nextPingAddr()
	if !ok {
		return
	}

	node, ok := e.nodes.Get(addr)
	if !ok {
		return
	}
	if node.State.Tag() != TagAlive && node.State.Tag() != TagSuspect {
		return
	}

	target, err := e.pings.Ping(addr)
	if err != nil {
		// Already has a probe in flight for this address: expected in
		// steady state, skip the round (spec §7).
		return
	}

	e.scheduler.PingTimers().StartNormal(target.Sequence)
	e.events.Ping(addr)
	_ = e.transport.SendPing(ctx, addr, target.Sequence, e.piggyback())
}

// ---- gossip interval ----

func (e *Engine) sampleAddrs(n int) []Addr {
	all := make([]Addr, 0, e.nodes.Len())
	for addr, node := range e.nodes.Snapshot() {
		if node.State.Tag() != TagLeft {
			all = append(all, addr)
		}
	}

	e.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

func (e *Engine) handleGossipInterval(ctx context.Context) {
	lo, hi := e.cfg.Gossip.Lo, e.cfg.Gossip.Hi
	n := lo
	if hi > lo {
		n = lo + e.rng.Intn(hi-lo)
	}

	targets := e.sampleAddrs(n)
	if len(targets) == 0 {
		return
	}

	updates := e.piggyback()
	if len(updates) == 0 {
		return
	}

	e.events.Gossip(targets)
	_ = e.transport.Gossip(ctx, targets, updates)
}

// ---- sync interval ----

func (e *Engine) handleSyncInterval(ctx context.Context) {
	candidates := e.sampleAddrs(1)
	if len(candidates) == 0 {
		return
	}
	peer := candidates[0]

	syncCtx, cancel := context.WithTimeout(ctx, e.cfg.Sync.ConnectTimeout+e.cfg.Sync.ReadTimeout+e.cfg.Sync.WriteTimeout)
	defer cancel()

	e.events.Sync(peer)
	remote, err := e.transport.Sync(syncCtx, peer, e.nodes.Snapshot())
	if err != nil {
		e.events.SyncFailed(peer, err)
		return
	}

	for addr, node := range remote {
		e.handleUpdate(ctx, StateUpdate{
			Addr:     addr,
			State:    node.State,
			Metadata: node.Metadata,
			From:     peer,
		})
	}
}

// ---- ping timeout ----

func (e *Engine) pickHelpers(exclude Addr, n int) []Addr {
	helpers := make([]Addr, 0, n)
	for _, addr := range e.sampleAddrs(e.nodes.Len()) {
		if addr == exclude {
			continue
		}
		if node, ok := e.nodes.Get(addr); !ok || node.State.Tag() != TagAlive {
			continue
		}
		helpers = append(helpers, addr)
		if len(helpers) == n {
			break
		}
	}
	return helpers
}

func (e *Engine) handlePingTimeout(ctx context.Context, seq uint64) {
	e.scheduler.PingTimers().Remove(seq)

	result, ok := e.pings.Fail(seq)
	if !ok {
		return
	}

	switch result.Kind {
	case FailDoIndirect:
		helpers := e.pickHelpers(result.Target.Addr, e.cfg.Ping.IndirectChecks)
		if len(helpers) == 0 {
			// No one to ask; treat it the same as a failed indirect
			// round with no nacks, resolving the indirect entry Fail just
			// installed so the address is no longer in flight.
			e.pings.Fail(result.Target.Sequence)
			e.onNodeFailed(result.Target.Addr, nil)
			return
		}

		e.events.IndirectPing(result.Target.Addr, helpers)
		piggyback := e.piggyback()

		// Fan the requests out without joining here: this runs on the
		// single event-loop goroutine (spec §5), and waiting on the
		// slowest helper's send would stall every other inbound/
		// scheduler event in the meantime. The group is awaited on its
		// own goroutine purely to surface send errors, not to gate
		// progress.
		g, gctx := errgroup.WithContext(ctx)
		for _, h := range helpers {
			h := h
			g.Go(func() error {
				return e.transport.SendPingRequest(gctx, h, result.Target.Sequence, result.Target.Addr, piggyback)
			})
		}
		go func() { _ = g.Wait() }()

		e.scheduler.PingTimers().StartNormal(result.Target.Sequence)

	case FailSendNack:
		_ = e.transport.SendNack(ctx, result.Source.Addr, result.Source.Sequence)
		// The Nack-phase timer already fired; arm the Grace phase for
		// the same sequence (Fail keeps the Request entry under seq).
		e.scheduler.PingTimers().StartGrace(seq)

	case FailRequestFailed:
		// Drop quietly: both phases elapsed with no outcome to report.

	case FailNodeFailed:
		e.onNodeFailed(result.Target.Addr, result.Nacks)
	}
}

// onNodeFailed applies the Lifeguard awareness penalty and the local
// Alive->Suspect transition for a node whose indirect probe round
// produced no ack (spec §4.1, §4.8).
func (e *Engine) onNodeFailed(addr Addr, nacks map[Addr]struct{}) {
	// Confirming nacks mean peers independently tried and also failed:
	// stronger evidence the remote node is actually down, weaker
	// evidence this node's own I/O is degraded, hence the smaller
	// penalty.
	if len(nacks) > 0 {
		e.awareness.Increment()
	} else {
		e.awareness.Increment()
		e.awareness.Increment()
	}
	e.scheduler.UpdateAwareness(e.awareness.Score())
	e.events.Awareness(e.awareness.Score(), e.awareness.Max())

	node, ok := e.nodes.Get(addr)
	if !ok || node.State.Tag() != TagAlive {
		return
	}

	incarnation, _ := node.State.Incarnation()
	if err := node.State.SuspectState(); err != nil {
		return
	}
	e.nodes.Insert(node)

	e.suspicions.Suspect(addr, incarnation, e.self)
	e.scheduler.SuspicionTimers().Start(KillRequest{Addr: addr, Incarnation: incarnation})

	e.events.NodeChanged(node, CauseSuspicion)
	e.queue.Push(StateUpdate{Addr: addr, State: node.State, Metadata: node.Metadata, From: e.self})
}

// ---- suspicion timeout ----

func (e *Engine) handleSuspicionTimeout(req KillRequest) {
	defer e.scheduler.SuspicionTimers().Remove(req.Addr)

	node, ok := e.nodes.Get(req.Addr)
	if !ok || node.State.Tag() != TagSuspect {
		return
	}

	incarnation, _ := node.State.Incarnation()
	if incarnation != req.Incarnation {
		// Refuted or superseded since the timer was armed.
		return
	}

	if err := node.State.Kill(); err != nil {
		return
	}
	e.nodes.Insert(node)
	e.suspicions.Remove(req.Addr)
	e.deadAt[req.Addr] = nowForReclaim()

	e.events.NodeChanged(node, CauseDeath)
	e.queue.Push(StateUpdate{Addr: req.Addr, State: node.State, Metadata: node.Metadata})
}

// ---- inbound dispatch ----

func (e *Engine) handleInbound(ctx context.Context, in Inbound) {
	switch in.Kind {
	case InboundPing:
		e.events.ReceivedPing(in.From)
		_ = e.transport.SendAck(ctx, in.From, in.Seq, e.piggyback())

	case InboundIndirectPing:
		e.events.ReceivedPing(in.From)
		_ = e.transport.SendAck(ctx, in.From, in.Seq, e.piggyback())

	case InboundAck:
		e.handleAck(ctx, in.From, in.Seq)

	case InboundNack:
		e.handleNack(in.From, in.Seq)

	case InboundPingRequest:
		e.handlePingRequest(ctx, in.From, in.Seq, in.Target)

	case InboundUpdate:
		e.handleUpdate(ctx, in.Update)
	}

	for _, u := range in.Piggybacks {
		e.handleUpdate(ctx, u)
	}
}

func (e *Engine) handleAck(ctx context.Context, from Addr, seq uint64) {
	result, ok := e.pings.Ack(seq)
	if !ok {
		return
	}

	switch result.Kind {
	case AckDirect:
		e.scheduler.PingTimers().Remove(seq)
		e.awareness.Decrement()
		e.scheduler.UpdateAwareness(e.awareness.Score())
		e.events.Awareness(e.awareness.Score(), e.awareness.Max())
		e.reviveIfDead(result.Addr)
		e.events.Ack(result.Addr)

	case AckIndirect:
		e.scheduler.PingTimers().Remove(seq)
		e.awareness.Decrement()
		e.scheduler.UpdateAwareness(e.awareness.Score())
		e.events.Awareness(e.awareness.Score(), e.awareness.Max())
		e.reviveIfDead(result.Addr)
		e.events.IndirectAck(result.Addr, from)

	case AckRequest:
		// This node was a helper: forward the positive outcome to the
		// original requester, using its own sequence number.
		_ = e.transport.SendAck(ctx, result.Source.Addr, result.Source.Sequence, nil)
	}
}

func (e *Engine) reviveIfDead(addr Addr) {
	node, ok := e.nodes.Get(addr)
	if !ok {
		return
	}
	if node.State.SuspectIfDead() {
		// Insert would reject Suspect(i) as lower than the stored Dead(i),
		// so the downgrade is written to the table directly.
		e.nodes.members[addr] = node
		delete(e.deadAt, addr)
		e.events.NodeChanged(node, CauseUpdate)
	}
}

func (e *Engine) handleNack(from Addr, seq uint64) {
	result, ok := e.pings.Nack(seq, from)
	if !ok {
		return
	}
	e.events.Nack(result.Addr, from)
}

func (e *Engine) handlePingRequest(ctx context.Context, from Addr, seq uint64, target Addr) {
	source := RequestSource{Sequence: seq, Addr: from}
	prt := e.pings.PingRequest(source, target)

	e.scheduler.PingTimers().StartNack(prt.Sequence)
	e.events.PingRequest(target, from)
	_ = e.transport.SendIndirectPing(ctx, target, prt.Sequence, target, e.piggyback())
}

// handleUpdate merges a single StateUpdate, handling self-refutation and
// suspicion-table bookkeeping (spec §4.8).
func (e *Engine) handleUpdate(ctx context.Context, u StateUpdate) {
	if u.Addr == "" {
		// A standalone KindUpdate frame carries its batch only in
		// Updates/Piggybacks; Update is left at its zero value and must
		// not be merged as a phantom empty-address member.
		return
	}
	if u.Addr == e.self {
		e.handleSelfUpdate(u)
		return
	}

	result := e.nodes.Insert(Node{Addr: u.Addr, State: u.State, Metadata: u.Metadata})
	if result == Unchanged {
		return
	}

	if result == Inserted {
		e.scheduler.UpdateNodeCount(e.nodeCount())
	}

	// Suspicions is its own independent bookkeeping table: a repeated
	// Suspect(i) claim from a second accuser leaves the NodeSet entry
	// Equal (nothing to merge) but must still accumulate, or the
	// confirming-suspector acceleration of the kill timer (spec §4.7)
	// could never trigger.
	if u.State.Tag() == TagSuspect {
		incarnation, _ := u.State.Incarnation()
		outcome, count := e.suspicions.Suspect(u.Addr, incarnation, u.From)
		switch outcome {
		case SuspicionNew, SuspicionReset:
			e.scheduler.SuspicionTimers().Remove(u.Addr)
			e.scheduler.SuspicionTimers().Start(KillRequest{Addr: u.Addr, Incarnation: incarnation})
		case SuspicionUpdate:
			e.scheduler.SuspicionTimers().UpdateSuspectors(u.Addr, uint32(count))
		}
	}

	if result == Equal {
		return
	}

	node, _ := e.nodes.Get(u.Addr)
	switch u.State.Tag() {
	case TagAlive:
		e.suspicions.Remove(u.Addr)
		e.scheduler.SuspicionTimers().Remove(u.Addr)
		delete(e.deadAt, u.Addr)
		e.events.NodeChanged(node, CauseUpdate)

	case TagDead:
		e.suspicions.Remove(u.Addr)
		e.scheduler.SuspicionTimers().Remove(u.Addr)
		e.deadAt[u.Addr] = nowForReclaim()
		e.events.NodeChanged(node, CauseDeath)

	case TagLeft:
		e.suspicions.Remove(u.Addr)
		e.scheduler.SuspicionTimers().Remove(u.Addr)
		e.deadAt[u.Addr] = nowForReclaim()
		e.events.NodeChanged(node, CauseUpdate)

	case TagSuspect:
		e.events.NodeChanged(node, CauseSuspicion)
	}

	e.queue.Push(u)
}

// handleSelfUpdate implements the self-refutation rule: a Suspect or Dead
// claim about this node at its current incarnation is answered by
// reincarnating (spec §4.8, scenario S6).
func (e *Engine) handleSelfUpdate(u StateUpdate) {
	if u.State.Tag() != TagSuspect && u.State.Tag() != TagDead {
		return
	}
	if u.State.Compare(e.selfState) <= 0 {
		// Stale relative to what this node already knows about itself.
		return
	}

	incarnation, _ := e.selfState.Incarnation()
	e.selfState = Alive(incarnation + 1)
	e.awareness.Increment()
	e.scheduler.UpdateAwareness(e.awareness.Score())
	e.events.Awareness(e.awareness.Score(), e.awareness.Max())

	e.queue.Push(StateUpdate{Addr: e.self, State: e.selfState, Metadata: e.selfMetadata})

	if u.State.Tag() == TagSuspect {
		e.events.Suspected(u.From)
	} else {
		e.events.DeclaredDead(u.From)
	}
}

// ---- reclaim ----

func (e *Engine) reap() {
	now := nowForReclaim()
	for addr, since := range e.deadAt {
		node, ok := e.nodes.Get(addr)
		if !ok {
			delete(e.deadAt, addr)
			continue
		}

		var after time.Duration
		switch node.State.Tag() {
		case TagDead:
			after = e.cfg.Reclaim.DeadAfter
		case TagLeft:
			after = e.cfg.Reclaim.LeftAfter
		default:
			delete(e.deadAt, addr)
			continue
		}

		if now.Sub(since) >= after {
			e.nodes.Remove(addr)
			delete(e.deadAt, addr)
			e.events.Removed(node)
		}
	}
}

// nowForReclaim is the engine's one escape hatch to wall-clock time,
// isolated here so reclaim bookkeeping is easy to reason about alongside
// the rest of the otherwise deterministic core tables.
func nowForReclaim() time.Time { return time.Now() }

// ---- join ----

// Join performs an initial Sync push-pull against each seed in turn, up
// to cfg.Join.MaxRounds, merging whatever membership each one returns.
// It stops at the first seed that answers; the rest are only tried if
// an earlier one is unreachable. Call it before Run so the first
// PingInterval already has peers to probe.
func (e *Engine) Join(ctx context.Context, seeds []Addr) error {
	var lastErr error

	rounds := e.cfg.Join.MaxRounds
	if rounds <= 0 {
		rounds = len(seeds)
	}

	for i, seed := range seeds {
		if i >= rounds {
			break
		}

		syncCtx, cancel := context.WithTimeout(ctx, e.cfg.Sync.ConnectTimeout+e.cfg.Sync.ReadTimeout+e.cfg.Sync.WriteTimeout)
		remote, err := e.transport.Sync(syncCtx, seed, e.nodes.Snapshot())
		cancel()

		if err != nil {
			e.events.SyncFailed(seed, err)
			lastErr = err
			continue
		}

		for addr, node := range remote {
			e.handleUpdate(ctx, StateUpdate{Addr: addr, State: node.State, Metadata: node.Metadata, From: seed})
		}
		if _, ok := remote[seed]; !ok {
			// The seed didn't describe itself; make sure it's still
			// recorded as a member we can probe.
			e.handleUpdate(ctx, StateUpdate{Addr: seed, State: Alive(0), From: seed})
		}
		return nil
	}

	return lastErr
}

// ---- lifecycle ----

// Leave transitions this node to Left, disseminates it, and invokes the
// Leaving/Left observer callbacks (spec §6).
func (e *Engine) Leave() {
	e.events.Leaving()
	e.selfState = Left
	e.queue.Push(StateUpdate{Addr: e.self, State: Left, Metadata: e.selfMetadata})
	e.events.Left()
}

// Snapshot returns the current NodeSet population grouped by state.
func (e *Engine) Snapshot() Counts { return e.nodes.Counts() }

// Membership returns a point-in-time copy of every known member, as
// used to answer an inbound Sync request. Like
// every other NodeSet access, it is only safe to call from the engine's
// own Run goroutine (or before Run starts) — a collaborator on another
// goroutine must use RequestMembership instead (spec §5).
func (e *Engine) Membership() map[Addr]Node { return e.nodes.Snapshot() }

// RequestMembership is the cross-goroutine-safe way to read the current
// membership: it hands the request to the engine's own Run loop over
// membershipReq and blocks for the reply, so the NodeSet is only ever
// touched from the single goroutine that owns it (spec §5). Used by
// wire.Transport's TCP accept loop to answer an inbound Sync request,
// mirroring the way serveSync already feeds synced updates back through
// Inbound rather than mutating engine state directly. Returns ctx.Err()
// if ctx is done before Run answers (e.g. Run has already exited).
func (e *Engine) RequestMembership(ctx context.Context) (map[Addr]Node, error) {
	req := membershipRequest{reply: make(chan map[Addr]Node, 1)}

	select {
	case e.membershipReq <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case m := <-req.reply:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ClusterSize returns the node count used to scale the sync interval
// and the suspicion-timeout curve: every known member plus self.
func (e *Engine) ClusterSize() int { return int(e.nodeCount()) }

// Self returns this node's own address and current state.
func (e *Engine) Self() (Addr, NodeState) { return e.self, e.selfState }

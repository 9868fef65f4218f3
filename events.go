package swim

// Cause explains why an EventHandler.NodeChanged callback fired (spec §6,
// grounded on original_source/src/client/event.rs's Cause enum).
type Cause uint8

const (
	// CauseUpdate means a routine state update was merged in.
	CauseUpdate Cause = iota
	// CauseSuspicion means the node could not be reached and has
	// therefore been suspected.
	CauseSuspicion
	// CauseDeath means the node could not be reached and the suspicion
	// period elapsed.
	CauseDeath
)

// EventHandler receives observer callbacks from the engine (spec §6). It
// is the user-facing event surface spec §1 calls an external collaborator;
// the engine only ever calls through this interface. NullEventHandler
// satisfies it with every method a no-op, so callers that don't care about
// events can embed it instead of implementing every method.
type EventHandler interface {
	// Awareness is invoked when the local awareness score changes.
	Awareness(score, max uint32)
	// NodeChanged is invoked when the state of a node changes.
	NodeChanged(node Node, cause Cause)
	// Removed is invoked when a node is evicted from the NodeSet.
	Removed(node Node)
	// Gossip is invoked before gossiping, with the sampled target list.
	Gossip(targets []Addr)
	// Sync is invoked before a full-state sync exchange.
	Sync(addr Addr)
	// SyncFailed is invoked when a sync exchange failed.
	SyncFailed(addr Addr, err error)
	// Ack is invoked when a direct ack has been received.
	Ack(target Addr)
	// IndirectAck is invoked when an indirect ack has been received.
	IndirectAck(target, from Addr)
	// Nack is invoked when a nack has been received.
	Nack(target, from Addr)
	// ReceivedPing is invoked when a ping has been received.
	ReceivedPing(addr Addr)
	// Ping is invoked when this node pings another.
	Ping(addr Addr)
	// IndirectPing is invoked when this node dispatches an indirect
	// probe to target via executors.
	IndirectPing(target Addr, executors []Addr)
	// PingRequest is invoked when an indirect-ping request has been
	// received on behalf of requestor, targeting target.
	PingRequest(target, requestor Addr)
	// Suspected is invoked when this node itself was suspected by
	// suspector.
	Suspected(suspector Addr)
	// DeclaredDead is invoked when this node itself was declared dead
	// by declaredBy.
	DeclaredDead(declaredBy Addr)
	// Leaving is invoked when this node is preparing to leave.
	Leaving()
	// Left is invoked once this node has left.
	Left()
	// Stopped is invoked when this node was forcefully stopped.
	Stopped()
}

// NullEventHandler implements EventHandler with every method a no-op.
// Embed it to implement only the callbacks you care about.
type NullEventHandler struct{}

func (NullEventHandler) Awareness(uint32, uint32)      {}
func (NullEventHandler) NodeChanged(Node, Cause)       {}
func (NullEventHandler) Removed(Node)                  {}
func (NullEventHandler) Gossip([]Addr)                 {}
func (NullEventHandler) Sync(Addr)                     {}
func (NullEventHandler) SyncFailed(Addr, error)        {}
func (NullEventHandler) Ack(Addr)                      {}
func (NullEventHandler) IndirectAck(Addr, Addr)         {}
func (NullEventHandler) Nack(Addr, Addr)                {}
func (NullEventHandler) ReceivedPing(Addr)              {}
func (NullEventHandler) Ping(Addr)                      {}
func (NullEventHandler) IndirectPing(Addr, []Addr)      {}
func (NullEventHandler) PingRequest(Addr, Addr)         {}
func (NullEventHandler) Suspected(Addr)                 {}
func (NullEventHandler) DeclaredDead(Addr)              {}
func (NullEventHandler) Leaving()                       {}
func (NullEventHandler) Left()                          {}
func (NullEventHandler) Stopped()                       {}

var _ EventHandler = NullEventHandler{}

package swim

import "context"

// StateUpdate is a single membership fact in flight: an Alive, Suspect,
// Dead or Leave claim about Addr. It is exchanged both standalone and
// piggybacked on probe traffic (spec §6), and is also the unit the
// broadcast-queue collaborator (package broadcast) retransmits.
//
// From carries the accusing node for a Suspect claim; it is empty (and
// meaningless) for every other tag.
type StateUpdate struct {
	Addr     Addr
	State    NodeState
	Metadata []byte
	From     Addr
}

// Inbound is a single message arriving off the wire, already demultiplexed
// by kind and carrying whatever piggybacked StateUpdates the transport
// found room for in the same frame (spec §6).
type Inbound struct {
	From Addr
	Kind InboundKind

	// valid for InboundPing, InboundAck, InboundIndirectPing, InboundNack
	Seq uint64

	// valid for InboundPingRequest, InboundIndirectPing
	Target Addr

	// valid for InboundUpdate: the standalone update this frame carries.
	Update StateUpdate

	Piggybacks []StateUpdate
}

// InboundKind discriminates the message kinds the engine dispatches on
// (spec §6).
type InboundKind uint8

const (
	InboundPing InboundKind = iota
	InboundAck
	InboundPingRequest
	InboundIndirectPing
	InboundNack
	InboundUpdate
)

// Transport is the engine's abstract network collaborator (spec §1, §6):
// the engine only ever calls through this interface, never touches a
// socket directly. wire.Transport is the concrete UDP/TCP implementation.
//
// Every Send* method should piggyback as many entries from piggyback as
// its frame budget allows; it is never required to send all of them.
type Transport interface {
	// Inbound delivers every frame addressed to this node. It must stay
	// open for the engine's entire lifetime.
	Inbound() <-chan Inbound

	SendPing(ctx context.Context, to Addr, seq uint64, piggyback []StateUpdate) error
	SendAck(ctx context.Context, to Addr, seq uint64, piggyback []StateUpdate) error
	SendPingRequest(ctx context.Context, to Addr, seq uint64, target Addr, piggyback []StateUpdate) error
	SendIndirectPing(ctx context.Context, to Addr, seq uint64, target Addr, piggyback []StateUpdate) error
	SendNack(ctx context.Context, to Addr, seq uint64) error

	// Gossip disseminates updates to each address in to, best-effort.
	Gossip(ctx context.Context, to []Addr, updates []StateUpdate) error

	// Sync performs a full-state push-pull exchange with to, sending
	// local and returning whatever the peer holds.
	Sync(ctx context.Context, to Addr, local map[Addr]Node) (map[Addr]Node, error)
}

// BroadcastQueue is the engine's abstract piggyback/retransmit-queue
// collaborator (spec §1, §6); package broadcast is the concrete bounded
// priority implementation.
type BroadcastQueue interface {
	// Push enqueues update for future retransmission.
	Push(update StateUpdate)
	// Take returns up to n updates for piggybacking on an outgoing
	// frame, sized against a budget of budgetBytes.
	Take(n int, budgetBytes int) []StateUpdate
}

// Package wire is the concrete Transport implementation: UDP for probe
// traffic, TCP for the full-state Sync push-pull exchange, both encoded
// with a hand-declared protobuf schema (no protoc run; the struct tags
// below are what protoc-gen-go would have produced for the equivalent
// .proto, grounded on the teacher's own "pb" package usage in swim.go).
package wire

import "github.com/golang/protobuf/proto"

// Kind mirrors swim.InboundKind and is what travels on the wire as
// Frame.Kind; it is redeclared here rather than imported so this package
// never has to reach back into the root package for a bare integer.
type Kind int32

const (
	KindPing Kind = iota
	KindAck
	KindPingRequest
	KindIndirectPing
	KindNack
	KindUpdate
)

// Frame is the single message envelope every UDP datagram carries: one
// primary payload (selected by Kind) plus a batch of piggybacked
// updates. Flat fields rather than a oneof, matching the
// hand-declared-protobuf style of the era of golang/protobuf this
// module depends on.
type Frame struct {
	Kind    int32        `protobuf:"varint,1,opt,name=kind" json:"kind,omitempty"`
	From    string       `protobuf:"bytes,2,opt,name=from" json:"from,omitempty"`
	Seq     uint64       `protobuf:"varint,3,opt,name=seq" json:"seq,omitempty"`
	Target  string       `protobuf:"bytes,4,opt,name=target" json:"target,omitempty"`
	Update  *UpdateMsg   `protobuf:"bytes,5,opt,name=update" json:"update,omitempty"`
	Updates []*UpdateMsg `protobuf:"bytes,6,rep,name=updates" json:"updates,omitempty"`
}

func (f *Frame) Reset()         { *f = Frame{} }
func (f *Frame) String() string { return proto.CompactTextString(f) }
func (*Frame) ProtoMessage()    {}

// UpdateMsg is a single membership fact: swim.StateUpdate's wire form.
type UpdateMsg struct {
	Addr        string `protobuf:"bytes,1,opt,name=addr" json:"addr,omitempty"`
	Tag         int32  `protobuf:"varint,2,opt,name=tag" json:"tag,omitempty"`
	Incarnation uint64 `protobuf:"varint,3,opt,name=incarnation" json:"incarnation,omitempty"`
	Metadata    []byte `protobuf:"bytes,4,opt,name=metadata" json:"metadata,omitempty"`
	From        string `protobuf:"bytes,5,opt,name=from" json:"from,omitempty"`
	InstanceID  string `protobuf:"bytes,6,opt,name=instance_id" json:"instance_id,omitempty"`
}

func (u *UpdateMsg) Reset()         { *u = UpdateMsg{} }
func (u *UpdateMsg) String() string { return proto.CompactTextString(u) }
func (*UpdateMsg) ProtoMessage()    {}

// NodeList is the full-membership payload exchanged by a Sync push-pull
// round over TCP.
type NodeList struct {
	Nodes []*UpdateMsg `protobuf:"bytes,1,rep,name=nodes" json:"nodes,omitempty"`
}

func (n *NodeList) Reset()         { *n = NodeList{} }
func (n *NodeList) String() string { return proto.CompactTextString(n) }
func (*NodeList) ProtoMessage()    {}

package wire

import (
	"github.com/golang/protobuf/proto"

	"github.com/lifeguard-swim/swim"
)

func tagOf(s swim.NodeState) int32 { return int32(s.Tag()) }

func stateFromWire(tag int32, incarnation uint64) swim.NodeState {
	switch swim.Tag(tag) {
	case swim.TagAlive:
		return swim.Alive(incarnation)
	case swim.TagSuspect:
		return swim.Suspect(incarnation)
	case swim.TagDead:
		return swim.Dead(incarnation)
	default:
		return swim.Left
	}
}

func encodeUpdate(u swim.StateUpdate) *UpdateMsg {
	incarnation, _ := u.State.Incarnation()
	return &UpdateMsg{
		Addr:        string(u.Addr),
		Tag:         tagOf(u.State),
		Incarnation: incarnation,
		Metadata:    u.Metadata,
		From:        string(u.From),
	}
}

func decodeUpdate(m *UpdateMsg) swim.StateUpdate {
	return swim.StateUpdate{
		Addr:     swim.Addr(m.Addr),
		State:    stateFromWire(m.Tag, m.Incarnation),
		Metadata: m.Metadata,
		From:     swim.Addr(m.From),
	}
}

func encodeUpdates(us []swim.StateUpdate) []*UpdateMsg {
	if len(us) == 0 {
		return nil
	}
	out := make([]*UpdateMsg, len(us))
	for i, u := range us {
		out[i] = encodeUpdate(u)
	}
	return out
}

func decodeUpdates(ms []*UpdateMsg) []swim.StateUpdate {
	if len(ms) == 0 {
		return nil
	}
	out := make([]swim.StateUpdate, len(ms))
	for i, m := range ms {
		out[i] = decodeUpdate(m)
	}
	return out
}

func marshalFrame(f *Frame) ([]byte, error) { return proto.Marshal(f) }

func marshalNodeList(n *NodeList) ([]byte, error) { return proto.Marshal(n) }

func unmarshalNodeList(data []byte, into *NodeList) error { return proto.Unmarshal(data, into) }

func unmarshalFrame(data []byte) (*Frame, error) {
	f := &Frame{}
	if err := proto.Unmarshal(data, f); err != nil {
		return nil, err
	}
	return f, nil
}

func encodeNodeList(nodes map[swim.Addr]swim.Node) *NodeList {
	list := &NodeList{Nodes: make([]*UpdateMsg, 0, len(nodes))}
	for addr, n := range nodes {
		incarnation, _ := n.State.Incarnation()
		list.Nodes = append(list.Nodes, &UpdateMsg{
			Addr:        string(addr),
			Tag:         tagOf(n.State),
			Incarnation: incarnation,
			Metadata:    n.Metadata,
			InstanceID:  n.InstanceID,
		})
	}
	return list
}

func decodeNodeList(list *NodeList) map[swim.Addr]swim.Node {
	out := make(map[swim.Addr]swim.Node, len(list.Nodes))
	for _, m := range list.Nodes {
		out[swim.Addr(m.Addr)] = swim.Node{
			Addr:       swim.Addr(m.Addr),
			InstanceID: m.InstanceID,
			State:      stateFromWire(m.Tag, m.Incarnation),
			Metadata:   m.Metadata,
		}
	}
	return out
}

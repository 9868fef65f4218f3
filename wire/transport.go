package wire

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/it-chain/iLogger"

	"github.com/lifeguard-swim/swim"
)

// Transport is the concrete swim.Transport: a UDP socket for probe
// traffic (Ping/Ack/PingRequest/IndirectPing/Nack/standalone updates)
// and a TCP listener for Sync push-pull rounds. Grounded on the
// teacher's PacketTransport/MessageEndpoint split (one type owning both
// a bound socket and an inbound dispatch loop).
type Transport struct {
	conn      net.PacketConn
	self      swim.Addr
	inBufSize int

	listener net.Listener

	inbound chan swim.Inbound
	done    chan struct{}

	snapshotSourceFn func(ctx context.Context) (map[swim.Addr]swim.Node, error)
}

// snapshotTimeout bounds how long serveSync waits on the engine's own
// goroutine to answer a membership request before giving up and
// answering the peer with an empty NodeList.
const snapshotTimeout = 5 * time.Second

// NewTransport binds a UDP socket at bindAddr (used for probe traffic)
// and a TCP listener at the same host:port (used for Sync), and starts
// their read loops. self is this node's own advertised address, used to
// stamp inbound-to-wire asymmetry where needed.
func NewTransport(bindAddr, self swim.Addr, inBufSize, outBufSize int) (*Transport, error) {
	conn, err := net.ListenPacket("udp", string(bindAddr))
	if err != nil {
		return nil, fmt.Errorf("wire: listen udp %s: %w", bindAddr, err)
	}

	listener, err := net.Listen("tcp", string(bindAddr))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: listen tcp %s: %w", bindAddr, err)
	}

	t := &Transport{
		conn:      conn,
		self:      self,
		inBufSize: inBufSize,
		listener:  listener,
		inbound:   make(chan swim.Inbound, outBufSize),
		done:      make(chan struct{}),
	}

	go t.readLoop()
	go t.acceptLoop()

	return t, nil
}

func (t *Transport) Inbound() <-chan swim.Inbound { return t.inbound }

// Close stops both read loops and releases the sockets.
func (t *Transport) Close() error {
	close(t.done)
	t.listener.Close()
	return t.conn.Close()
}

func (t *Transport) readLoop() {
	buf := make([]byte, t.inBufSize)
	for {
		n, _, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				iLogger.Error(nil, fmt.Sprintf("wire: udp read: %v", err))
				continue
			}
		}

		frame, err := unmarshalFrame(buf[:n])
		if err != nil {
			iLogger.Error(nil, fmt.Sprintf("wire: decode frame: %v", err))
			continue
		}

		in := swim.Inbound{
			From:       swim.Addr(frame.From),
			Kind:       swim.InboundKind(frame.Kind),
			Seq:        frame.Seq,
			Target:     swim.Addr(frame.Target),
			Piggybacks: decodeUpdates(frame.Updates),
		}
		if frame.Update != nil {
			in.Update = decodeUpdate(frame.Update)
		}

		select {
		case t.inbound <- in:
		case <-t.done:
			return
		}
	}
}

func (t *Transport) send(ctx context.Context, to swim.Addr, f *Frame) error {
	data, err := marshalFrame(f)
	if err != nil {
		return err
	}

	addr, err := net.ResolveUDPAddr("udp", string(to))
	if err != nil {
		return err
	}

	if dl, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(dl)
		defer t.conn.SetWriteDeadline(time.Time{})
	}

	_, err = t.conn.WriteTo(data, addr)
	return err
}

func (t *Transport) SendPing(ctx context.Context, to swim.Addr, seq uint64, piggyback []swim.StateUpdate) error {
	return t.send(ctx, to, &Frame{Kind: int32(KindPing), From: string(t.self), Seq: seq, Updates: encodeUpdates(piggyback)})
}

func (t *Transport) SendAck(ctx context.Context, to swim.Addr, seq uint64, piggyback []swim.StateUpdate) error {
	return t.send(ctx, to, &Frame{Kind: int32(KindAck), From: string(t.self), Seq: seq, Updates: encodeUpdates(piggyback)})
}

func (t *Transport) SendPingRequest(ctx context.Context, to swim.Addr, seq uint64, target swim.Addr, piggyback []swim.StateUpdate) error {
	return t.send(ctx, to, &Frame{Kind: int32(KindPingRequest), From: string(t.self), Seq: seq, Target: string(target), Updates: encodeUpdates(piggyback)})
}

func (t *Transport) SendIndirectPing(ctx context.Context, to swim.Addr, seq uint64, target swim.Addr, piggyback []swim.StateUpdate) error {
	return t.send(ctx, to, &Frame{Kind: int32(KindIndirectPing), From: string(t.self), Seq: seq, Target: string(target), Updates: encodeUpdates(piggyback)})
}

func (t *Transport) SendNack(ctx context.Context, to swim.Addr, seq uint64) error {
	return t.send(ctx, to, &Frame{Kind: int32(KindNack), From: string(t.self), Seq: seq})
}

// Gossip sends every update standalone-piggybacked (no primary payload)
// to each target, best-effort: the first error is returned but every
// target is still attempted.
func (t *Transport) Gossip(ctx context.Context, to []swim.Addr, updates []swim.StateUpdate) error {
	var firstErr error
	for _, addr := range to {
		err := t.send(ctx, addr, &Frame{Kind: int32(KindUpdate), From: string(t.self), Updates: encodeUpdates(updates)})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

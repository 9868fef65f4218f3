package wire

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/it-chain/iLogger"

	"github.com/lifeguard-swim/swim"
)

// writeFrame length-prefixes data (4-byte big-endian) so a TCP stream
// preserves the datagram-like framing UDP gives for free.
func writeFrame(w io.Writer, data []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// acceptLoop serves inbound Sync requests: accept a connection, read the
// peer's NodeList, answer with this node's own Snapshot.
//
// Sync itself needs the engine's current membership, which the
// Transport does not own; callers wire it up via SetSnapshotSource
// before the first sync round can be served.
func (t *Transport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				iLogger.Error(nil, fmt.Sprintf("wire: tcp accept: %v", err))
				continue
			}
		}
		go t.serveSync(conn)
	}
}

func (t *Transport) serveSync(conn net.Conn) {
	defer conn.Close()

	data, err := readFrame(conn)
	if err != nil {
		return
	}
	peer := &NodeList{}
	if err := unmarshalNodeList(data, peer); err != nil {
		return
	}

	// Feed the peer's view back through the same Inbound channel the
	// engine already drains from its single goroutine, rather than
	// mutating any table from this accept goroutine directly.
	for addr, n := range decodeNodeList(peer) {
		update := swim.StateUpdate{Addr: addr, State: n.State, Metadata: n.Metadata}
		select {
		case t.inbound <- swim.Inbound{Kind: swim.InboundUpdate, Update: update}:
		case <-t.done:
			return
		}
	}

	local, err := t.snapshotSource(context.Background())
	if err != nil {
		iLogger.Error(nil, fmt.Sprintf("wire: membership snapshot for sync reply: %v", err))
		local = nil
	}

	out, err := marshalNodeList(encodeNodeList(local))
	if err != nil {
		return
	}
	_ = writeFrame(conn, out)
}

// Sync dials to, exchanges NodeList frames, and returns the peer's view.
func (t *Transport) Sync(ctx context.Context, to swim.Addr, local map[swim.Addr]swim.Node) (map[swim.Addr]swim.Node, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", string(to))
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", to, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	out, err := marshalNodeList(encodeNodeList(local))
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, out); err != nil {
		return nil, fmt.Errorf("wire: write sync request: %w", err)
	}

	data, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("wire: read sync response: %w", err)
	}

	remote := &NodeList{}
	if err := unmarshalNodeList(data, remote); err != nil {
		return nil, err
	}
	return decodeNodeList(remote), nil
}

// SetSnapshotSource installs the callback used to answer inbound Sync
// requests with this node's current membership view. f must be safe to
// call from the accept goroutine: it is expected to hand off to the
// engine's own goroutine and block for the reply (swim.Engine's
// RequestMembership does exactly this), never to touch NodeSet
// directly (spec §5). It must be called before the transport starts
// accepting connections for Sync to work in both directions; until
// then, inbound Sync requests are answered with an empty NodeList.
func (t *Transport) SetSnapshotSource(f func(ctx context.Context) (map[swim.Addr]swim.Node, error)) {
	t.snapshotSourceFn = f
}

func (t *Transport) snapshotSource(ctx context.Context) (map[swim.Addr]swim.Node, error) {
	if t.snapshotSourceFn == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	return t.snapshotSourceFn(ctx)
}


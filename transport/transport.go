// Package transport implements the length-prefixed message framing both
// sides of a connection use, and the out-of-band linked run-state value
// pushed alongside it. It plays the role the teacher's protocol.Connection
// played for syncthing (owning the single reader/writer pair and
// serializing writes), generalized to this protocol's framing and message
// codes instead of syncthing's flate-compressed XDR stream.
package transport

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/LordOfDragons/deremotelauncher-sub000/internal/bufpool"
	"github.com/LordOfDragons/deremotelauncher-sub000/protocol"
	"github.com/pkg/errors"
)

// MaxMessageLen bounds a single frame's body size, guarding against a
// corrupt or hostile length prefix causing an unbounded allocation.
const MaxMessageLen = 64 * 1024 * 1024

// ErrMessageTooLarge is returned by Receive when a frame's declared length
// exceeds MaxMessageLen.
var ErrMessageTooLarge = errors.New("transport: message exceeds maximum length")

// Conn wraps one net.Conn with length-prefixed framing: each frame is a
// little-endian uint32 byte count followed by that many body bytes (the
// body is a MessageCode byte plus its fields, as built by protocol.Writer).
//
// sendMu is this connection's single serialization point for writes: every
// send (request, response, pushed log line, pushed run-state update) takes
// it, so two goroutines can never interleave partial frames on the wire.
type Conn struct {
	nc     net.Conn
	sendMu sync.Mutex
	pool   *bufpool.Pool
}

// NewConn wraps an already-established net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, pool: bufpool.New()}
}

// Dial connects to address (host:port, port optional — see
// protocol.DefaultPort) and wraps the resulting connection.
func Dial(address string) (*Conn, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(protocol.DefaultPort))
	}
	nc, err := net.Dial("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", address)
	}
	return NewConn(nc), nil
}

// Send writes msg as a single frame. Safe for concurrent use.
func (c *Conn) Send(msg []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(msg)))
	if _, err := c.nc.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if _, err := c.nc.Write(msg); err != nil {
		return errors.Wrap(err, "write frame body")
	}
	return nil
}

// Receive blocks until one full frame has arrived and returns its body.
// The returned slice comes from the connection's buffer pool and is only
// valid until it is passed to Release — callers needing to retain it past
// that must copy.
func (c *Conn) Receive() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.nc, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxMessageLen {
		return nil, ErrMessageTooLarge
	}

	buf := c.pool.Get(int(n))
	if n > 0 {
		if _, err := io.ReadFull(c.nc, buf); err != nil {
			return nil, errors.Wrap(err, "read frame body")
		}
	}
	return buf, nil
}

// Release returns a buffer previously returned by Receive to the pool.
func (c *Conn) Release(buf []byte) {
	c.pool.Put(buf)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Package transport frames and defragments raw MTProto packets over a
// connection. It knows nothing about encryption, msg_ids, or acks —
// those belong to session.go (C2's encryption/ack-tree half) — it only
// turns a byte slice into a length-prefixed frame and back, per the
// negotiated mode.Mode. The concrete socket (Conn) is itself an
// external collaborator per spec §1/§6; NewTCP is the default,
// swappable implementation the teacher ships.
package transport

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/gotgl/tgl/internal/mode"
)

// Conn is the minimal socket surface the transport needs; satisfied
// by *net.TCPConn via the tcpConn wrapper in conn_tcp.go.
type Conn interface {
	io.ReadWriteCloser
}

// Transport frames outbound payloads and defragments inbound ones
// according to a single negotiated mode, writing the mode's one-time
// handshake preamble on first use.
type Transport struct {
	conn        Conn
	mode        mode.Mode
	shookHands  bool
}

func New(conn Conn, m mode.Mode) *Transport {
	return &Transport{conn: conn, mode: m}
}

func (t *Transport) handshakeOnce() error {
	if t.shookHands {
		return nil
	}
	if hs := mode.Handshake(t.mode); len(hs) > 0 {
		if _, err := t.conn.Write(hs); err != nil {
			return errors.Wrap(err, "writing mode handshake")
		}
	}
	t.shookHands = true
	return nil
}

// WriteFrame writes one length-prefixed packet.
func (t *Transport) WriteFrame(payload []byte) error {
	if err := t.handshakeOnce(); err != nil {
		return err
	}
	if _, err := t.conn.Write(mode.FrameLength(t.mode, len(payload))); err != nil {
		return errors.Wrap(err, "writing frame length")
	}
	if _, err := t.conn.Write(payload); err != nil {
		return errors.Wrap(err, "writing frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed packet back off the wire.
func (t *Transport) ReadFrame() ([]byte, error) {
	switch t.mode {
	case mode.Abridged:
		return t.readAbridgedFrame()
	default:
		return t.readFixedLengthFrame()
	}
}

func (t *Transport) readFixedLengthFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(t.conn, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "reading frame length")
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		return nil, errors.Wrap(err, "reading frame payload")
	}
	return payload, nil
}

func (t *Transport) readAbridgedFrame() ([]byte, error) {
	var first [1]byte
	if _, err := io.ReadFull(t.conn, first[:]); err != nil {
		return nil, errors.Wrap(err, "reading frame length byte")
	}
	var words int
	if first[0] < 0x7f {
		words = int(first[0])
	} else {
		var rest [3]byte
		if _, err := io.ReadFull(t.conn, rest[:]); err != nil {
			return nil, errors.Wrap(err, "reading extended frame length")
		}
		words = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16
	}
	payload := make([]byte, words*4)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		return nil, errors.Wrap(err, "reading frame payload")
	}
	return payload, nil
}

func (t *Transport) Close() error { return t.conn.Close() }

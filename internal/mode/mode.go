// Package mode names the TCP framing mode negotiated at connection
// start, referenced by the teacher's mtproto.go (mode.Intermediate)
// but not included in the retrieval pack; reconstructed here following
// the framing byte conventions documented by
// skrashevich-MTProxy__client_transport.go.
package mode

import "encoding/binary"

type Mode int

const (
	// Abridged prefixes each packet with a 1-byte (or 0x7f + 3-byte)
	// length in 4-byte words, and sends a single 0xef byte once to
	// select the mode.
	Abridged Mode = iota
	// Intermediate prefixes each packet with a plain 4-byte length
	// and sends 0xeeeeeeee once to select the mode.
	Intermediate
	// Full (the original framing) has no upfront handshake byte.
	// FrameLength gives it the same plain 4-byte length prefix as
	// Intermediate; no seqno prefix or CRC32 suffix is produced.
	Full
)

var handshakeBytes = map[Mode][]byte{
	Abridged:     {0xef},
	Intermediate: {0xee, 0xee, 0xee, 0xee},
	Full:         nil,
}

// Handshake returns the bytes that must be written once, before any
// framed packet, to tell the server which framing this connection
// uses. Full framing has no handshake preamble.
func Handshake(m Mode) []byte { return handshakeBytes[m] }

// FrameLength encodes a packet length according to m's prefix rule.
func FrameLength(m Mode, length int) []byte {
	switch m {
	case Abridged:
		words := length / 4
		if words < 0x7f {
			return []byte{byte(words)}
		}
		b := make([]byte, 4)
		b[0] = 0x7f
		b[1] = byte(words)
		b[2] = byte(words >> 8)
		b[3] = byte(words >> 16)
		return b
	default: // Intermediate, Full
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(length))
		return b
	}
}

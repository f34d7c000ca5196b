// Package tl implements the little-endian, word-aligned wire encoding
// MTProto calls TL (type language). It is the generic codec layer
// behind the narrow Object interface: the rest of the library never
// hand-rolls byte offsets, it calls Encode and reads through a
// ReadCursor.
package tl

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	WordLen   = 4
	LongLen   = 8
	Int128Len = 16
	Int256Len = 32
)

// Object is anything that knows its own TL constructor id and can
// serialize/deserialize itself onto a Serializer/cursor. Concrete
// schema types (ResPQ, RpcError, Message, ...) implement it; the
// skip/fetch/free generated-table approach the original C core uses
// is out of scope here (§1), so Object methods are hand-written per
// type instead of generated.
type Object interface {
	CRC() uint32
	Encode(s *Serializer)
}

// Decoder decodes a fresh Object of a known shape from a cursor.
// objects.Registry maps constructor ids to Decoders for the generic
// decode step; query results go through each query's own ResultDecoder
// instead.
type Decoder func(r *ReadCursor) (Object, error)

// Encode serializes obj (constructor id followed by its body) into a
// plain byte slice, the way a query stashes its body before handing it
// to the session for encryption.
func Encode(obj Object) []byte {
	s := NewSerializer()
	s.PutUint(obj.CRC())
	obj.Encode(s)
	return s.Bytes()
}

// WriteCursor accumulates TL-encoded values onto a byte buffer. It is
// the low-ceremony counterpart to Serializer, used where a type already
// holds its fields as plain Go values (handshake messages, encrypted
// containers) rather than going through the Object interface.
type WriteCursor struct {
	buf *bytes.Buffer
}

func NewWriteCursor(buf *bytes.Buffer) *WriteCursor { return &WriteCursor{buf: buf} }

func (w *WriteCursor) PutUint(v uint32) error {
	var b [WordLen]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.buf.Write(b[:])
	return err
}

func (w *WriteCursor) PutLong(v int64) error {
	var b [LongLen]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.buf.Write(b[:])
	return err
}

func (w *WriteCursor) PutDouble(v float64) error {
	var b [LongLen]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	_, err := w.buf.Write(b[:])
	return err
}

func (w *WriteCursor) PutRawBytes(b []byte) error {
	_, err := w.buf.Write(b)
	return err
}

// PutString writes a length-prefixed byte string using the TL rule:
// one length byte if len < 254, else 0xfe + 3-byte little-endian
// length, then the bytes themselves padded with zeros to a 4-byte
// boundary (the padding itself is not length-counted).
func (w *WriteCursor) PutString(data []byte) error {
	var header []byte
	if len(data) < 254 {
		header = []byte{byte(len(data))}
	} else {
		header = []byte{0xfe, byte(len(data)), byte(len(data) >> 8), byte(len(data) >> 16)}
	}
	total := len(header) + len(data)
	pad := (WordLen - total%WordLen) % WordLen
	if err := w.PutRawBytes(header); err != nil {
		return err
	}
	if err := w.PutRawBytes(data); err != nil {
		return err
	}
	return w.PutRawBytes(make([]byte, pad))
}

func (w *WriteCursor) Bytes() []byte { return w.buf.Bytes() }

// ReadCursor is the read-side counterpart of WriteCursor.
type ReadCursor struct {
	buf *bytes.Buffer
}

func NewReadCursor(buf *bytes.Buffer) *ReadCursor { return &ReadCursor{buf: buf} }

func (r *ReadCursor) PopUint() (uint32, error) {
	var b [WordLen]byte
	if _, err := r.buf.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "reading word")
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *ReadCursor) PopLong() (int64, error) {
	var b [LongLen]byte
	if _, err := r.buf.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "reading long")
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func (r *ReadCursor) PopDouble() (float64, error) {
	var b [LongLen]byte
	if _, err := r.buf.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "reading double")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}

func (r *ReadCursor) PopRawBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := r.buf.Read(out); err != nil {
		return nil, errors.Wrap(err, "reading raw bytes")
	}
	return out, nil
}

// PopString reads a length-prefixed byte string per the TL rule,
// including its alignment padding.
func (r *ReadCursor) PopString() ([]byte, error) {
	firstByte, err := r.buf.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "reading string length")
	}
	var length int
	var consumed int
	if firstByte == 0xfe {
		var rest [3]byte
		if _, err := r.buf.Read(rest[:]); err != nil {
			return nil, errors.Wrap(err, "reading long string length")
		}
		length = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16
		consumed = 4 + length
	} else {
		length = int(firstByte)
		consumed = 1 + length
	}
	data, err := r.PopRawBytes(length)
	if err != nil {
		return nil, err
	}
	pad := (WordLen - consumed%WordLen) % WordLen
	if pad > 0 {
		if _, err := r.PopRawBytes(pad); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (r *ReadCursor) Len() int { return r.buf.Len() }

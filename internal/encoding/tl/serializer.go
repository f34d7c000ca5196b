package tl

import (
	"encoding/binary"
	"math"
)

// Serializer is the write-only word buffer described as C1: a monotone
// assembler of little-endian 32-bit words. Encode creates a fresh one
// per call, so none is shared across goroutines.
type Serializer struct {
	words []uint32
}

func NewSerializer() *Serializer {
	return &Serializer{words: make([]uint32, 0, 64)}
}

// PutUint appends a single 32-bit word.
func (s *Serializer) PutUint(v uint32) { s.words = append(s.words, v) }

// PutLong appends a 64-bit value as two little-endian words.
func (s *Serializer) PutLong(v int64) {
	s.words = append(s.words, uint32(v), uint32(v>>32))
}

func (s *Serializer) PutDouble(v float64) {
	bits := math.Float64bits(v)
	s.words = append(s.words, uint32(bits), uint32(bits>>32))
}

// PutWords appends a run of raw 32-bit words verbatim, for re-wrapping
// a body already held as words (sendContainerResend holds its body as
// bytes and uses PutBytes instead).
func (s *Serializer) PutWords(words []uint32) { s.words = append(s.words, words...) }

// PutString writes a length-prefixed byte string following the TL
// padding rule (1-byte length if <254, else 0xfe + 3-byte length),
// padded to a word boundary.
func (s *Serializer) PutString(data []byte) {
	var header []byte
	if len(data) < 254 {
		header = []byte{byte(len(data))}
	} else {
		header = []byte{0xfe, byte(len(data)), byte(len(data) >> 8), byte(len(data) >> 16)}
	}
	buf := append(append([]byte{}, header...), data...)
	pad := (4 - len(buf)%4) % 4
	buf = append(buf, make([]byte, pad)...)
	for i := 0; i+4 <= len(buf); i += 4 {
		s.words = append(s.words, binary.LittleEndian.Uint32(buf[i:i+4]))
	}
}

// PutBytes appends raw bytes whose length is already known to be a
// multiple of the word size (fixed-size keys, hashes, ivs).
func (s *Serializer) PutBytes(data []byte) {
	for i := 0; i+4 <= len(data); i += 4 {
		s.words = append(s.words, binary.LittleEndian.Uint32(data[i:i+4]))
	}
}

// Words returns a read-only view of the accumulated words.
func (s *Serializer) Words() []uint32 { return s.words }

// WordCount is the number of 32-bit words written so far.
func (s *Serializer) WordCount() int { return len(s.words) }

// ByteCount is WordCount * 4.
func (s *Serializer) ByteCount() int { return len(s.words) * 4 }

// Bytes renders the accumulated words as little-endian bytes.
func (s *Serializer) Bytes() []byte {
	out := make([]byte, len(s.words)*4)
	for i, w := range s.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

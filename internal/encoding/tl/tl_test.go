package tl

import (
	"bytes"
	"testing"
)

func TestWriteCursorReadCursorRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	w := NewWriteCursor(buf)
	if err := w.PutUint(0xdeadbeef); err != nil {
		t.Fatalf("PutUint: %v", err)
	}
	if err := w.PutLong(-1); err != nil {
		t.Fatalf("PutLong: %v", err)
	}
	if err := w.PutDouble(3.5); err != nil {
		t.Fatalf("PutDouble: %v", err)
	}
	if err := w.PutString([]byte("hello")); err != nil {
		t.Fatalf("PutString: %v", err)
	}
	if err := w.PutRawBytes([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("PutRawBytes: %v", err)
	}

	r := NewReadCursor(bytes.NewBuffer(w.Bytes()))
	u, err := r.PopUint()
	if err != nil || u != 0xdeadbeef {
		t.Fatalf("PopUint: got %x, %v", u, err)
	}
	l, err := r.PopLong()
	if err != nil || l != -1 {
		t.Fatalf("PopLong: got %d, %v", l, err)
	}
	d, err := r.PopDouble()
	if err != nil || d != 3.5 {
		t.Fatalf("PopDouble: got %v, %v", d, err)
	}
	s, err := r.PopString()
	if err != nil || string(s) != "hello" {
		t.Fatalf("PopString: got %q, %v", s, err)
	}
	raw, err := r.PopRawBytes(4)
	if err != nil || !bytes.Equal(raw, []byte{1, 2, 3, 4}) {
		t.Fatalf("PopRawBytes: got %v, %v", raw, err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected cursor exhausted, %d bytes left", r.Len())
	}
}

func TestPutStringPadsToWordBoundary(t *testing.T) {
	cases := []struct {
		data     []byte
		wantLen  int
	}{
		{[]byte(""), 4},
		{[]byte("a"), 4},
		{[]byte("abc"), 4},
		{[]byte("abcd"), 8},
		{bytes.Repeat([]byte{'x'}, 253), 256},
		{bytes.Repeat([]byte{'x'}, 254), 260},
	}
	for _, c := range cases {
		buf := new(bytes.Buffer)
		w := NewWriteCursor(buf)
		if err := w.PutString(c.data); err != nil {
			t.Fatalf("PutString(%d bytes): %v", len(c.data), err)
		}
		if got := w.Bytes(); len(got) != c.wantLen || len(got)%4 != 0 {
			t.Fatalf("PutString(%d bytes): got %d bytes, want %d", len(c.data), len(got), c.wantLen)
		}
	}
}

type fakeObject struct {
	id  uint32
	val uint32
}

func (f *fakeObject) CRC() uint32         { return f.id }
func (f *fakeObject) Encode(s *Serializer) { s.PutUint(f.val) }

func TestEncodePrependsCRC(t *testing.T) {
	obj := &fakeObject{id: 0x12345678, val: 0xaabbccdd}
	got := Encode(obj)
	if len(got) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(got))
	}
	r := NewReadCursor(bytes.NewBuffer(got))
	crc, _ := r.PopUint()
	val, _ := r.PopUint()
	if crc != obj.id || val != obj.val {
		t.Fatalf("got crc=%x val=%x", crc, val)
	}
}

func TestSerializerPutBytesAndWords(t *testing.T) {
	s := NewSerializer()
	s.PutUint(1)
	s.PutBytes([]byte{2, 0, 0, 0, 3, 0, 0, 0})
	if s.WordCount() != 3 {
		t.Fatalf("expected 3 words, got %d", s.WordCount())
	}
	if s.ByteCount() != 12 {
		t.Fatalf("expected 12 bytes, got %d", s.ByteCount())
	}

	s2 := NewSerializer()
	s2.PutWords(s.Words())
	if !bytes.Equal(s.Bytes(), s2.Bytes()) {
		t.Fatalf("PutWords did not reproduce the source words")
	}
}

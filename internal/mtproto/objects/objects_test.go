package objects

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	"github.com/gotgl/tgl/internal/encoding/tl"
)

func TestPeekCodeReadsLeadingConstructor(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body, CodeRpcError)

	code, ok := PeekCode(body)
	if !ok || code != CodeRpcError {
		t.Fatalf("PeekCode = (%x, %v), want (%x, true)", code, ok, CodeRpcError)
	}
}

func TestPeekCodeRejectsShortBody(t *testing.T) {
	if _, ok := PeekCode([]byte{1, 2, 3}); ok {
		t.Fatalf("PeekCode should reject a body shorter than one word")
	}
}

func buildGzipPacked(t *testing.T, payload []byte) []byte {
	t.Helper()
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(payload); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	s := tl.NewSerializer()
	s.PutUint(CodeGzipPacked)
	s.PutString(gz.Bytes())
	return s.Bytes()
}

func TestInflateGzipPackedRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility, the quick brown fox jumps over the lazy dog")
	body := buildGzipPacked(t, payload)

	got, err := InflateGzipPacked(body)
	if err != nil {
		t.Fatalf("InflateGzipPacked: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("InflateGzipPacked = %q, want %q", got, payload)
	}
}

func TestInflateGzipPackedRejectsGarbage(t *testing.T) {
	s := tl.NewSerializer()
	s.PutUint(CodeGzipPacked)
	s.PutString([]byte("not gzip data"))

	if _, err := InflateGzipPacked(s.Bytes()); err == nil {
		t.Fatalf("expected an error inflating non-gzip data")
	}
}

func TestDecodeUnknownObjectDispatchesRegisteredCode(t *testing.T) {
	inner := tl.Encode(&Ping{PingID: 42})
	body := buildGzipPacked(t, inner)

	obj, err := DecodeUnknownObject(body)
	if err != nil {
		t.Fatalf("DecodeUnknownObject: %v", err)
	}
	gp, ok := obj.(*GzipPacked)
	if !ok {
		t.Fatalf("expected *GzipPacked, got %T", obj)
	}
	if gp.CRC() != CodeGzipPacked {
		t.Fatalf("decoded object has CRC %x, want %x", gp.CRC(), CodeGzipPacked)
	}
	ping, ok := gp.Obj.(*Ping)
	if !ok || ping.PingID != 42 {
		t.Fatalf("inflated inner object = %+v, want *Ping{PingID: 42}", gp.Obj)
	}
}

func TestDecodeUnknownObjectRejectsUnregisteredCode(t *testing.T) {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, 0xdeadbeef)
	if _, err := DecodeUnknownObject(body); err == nil {
		t.Fatalf("expected an error for an unregistered constructor id")
	}
}

package secretchat

import (
	"path/filepath"
	"testing"

	"github.com/gotgl/tgl/internal/crypto"
)

func TestKeyFingerprintIsLow64BitsOfSha1(t *testing.T) {
	key := make([]byte, 256)
	for i := range key {
		key[i] = byte(i * 7)
	}
	fp := KeyFingerprint(key)
	fp2 := KeyFingerprint(key)
	if fp != fp2 {
		t.Fatalf("KeyFingerprint is not deterministic: %x vs %x", fp, fp2)
	}

	digest := crypto.Sha1(key)
	var want int64
	for i := 0; i < 8; i++ {
		want |= int64(digest[12+i]) << (8 * i)
	}
	if fp != want {
		t.Fatalf("KeyFingerprint = %x, want low 64 bits of SHA1 %x", fp, want)
	}

	other := make([]byte, 256)
	copy(other, key)
	other[0] ^= 1
	if KeyFingerprint(other) == fp {
		t.Fatalf("KeyFingerprint did not change for a different key")
	}
}

func TestUnwrapAdvancesOnExpectedSeqNo(t *testing.T) {
	s := &State{InSeqNo: 5}

	// peer's raw out_seq_no=5, wire-encoded as 2*5+bit; the bit doesn't
	// affect decoding (rawSeqNo truncates it away).
	applies, gap := s.Unwrap(&DecryptedMessageLayer{OutSeqNo: wireOutSeqNo(5, false)})
	if !applies || gap {
		t.Fatalf("Unwrap(5) with InSeqNo=5 = (%v, %v), want (true, false)", applies, gap)
	}
	if s.InSeqNo != 6 {
		t.Fatalf("InSeqNo after Unwrap = %d, want 6", s.InSeqNo)
	}
}

func TestUnwrapDropsAlreadyApplied(t *testing.T) {
	s := &State{InSeqNo: 5}
	applies, gap := s.Unwrap(&DecryptedMessageLayer{OutSeqNo: wireOutSeqNo(3, false)})
	if applies || gap {
		t.Fatalf("Unwrap(3) with InSeqNo=5 = (%v, %v), want (false, false)", applies, gap)
	}
	if s.InSeqNo != 5 {
		t.Fatalf("InSeqNo should not change on an already-applied replay")
	}
}

func TestUnwrapReportsGap(t *testing.T) {
	s := &State{InSeqNo: 5}
	applies, gap := s.Unwrap(&DecryptedMessageLayer{OutSeqNo: wireOutSeqNo(8, false)})
	if applies || !gap {
		t.Fatalf("Unwrap(8) with InSeqNo=5 = (%v, %v), want (false, true)", applies, gap)
	}
}

func TestWrapUsesCurrentSeqNumbers(t *testing.T) {
	s := &State{InSeqNo: 2, OutSeqNo: 4, IsAdmin: false}
	l := s.Wrap(&DecryptedMessageLayer{})
	wantIn := 2*int32(2) + 1  // non-admin in_seq_no offset is 1
	wantOut := 2 * int32(4)   // non-admin out_seq_no offset is 0
	if l.InSeqNo != wantIn || l.OutSeqNo != wantOut || l.Layer != featureLayer {
		t.Fatalf("Wrap produced %+v, want in=%d out=%d layer=%d", l, wantIn, wantOut, featureLayer)
	}
}

func TestWrapAppliesAdminParityBit(t *testing.T) {
	s := &State{InSeqNo: 2, OutSeqNo: 4, IsAdmin: true}
	l := s.Wrap(&DecryptedMessageLayer{})
	wantIn := 2 * int32(2)    // admin in_seq_no offset is 0
	wantOut := 2*int32(4) + 1 // admin out_seq_no offset is 1
	if l.InSeqNo != wantIn || l.OutSeqNo != wantOut {
		t.Fatalf("Wrap produced %+v, want in=%d out=%d", l, wantIn, wantOut)
	}
}

func TestRawSeqNoInvertsWireEncodingRegardlessOfAdminBit(t *testing.T) {
	for _, raw := range []int32{0, 1, 5, 1000} {
		if got := rawSeqNo(wireInSeqNo(raw, true)); got != raw {
			t.Fatalf("rawSeqNo(wireInSeqNo(%d, true)) = %d, want %d", raw, got, raw)
		}
		if got := rawSeqNo(wireInSeqNo(raw, false)); got != raw {
			t.Fatalf("rawSeqNo(wireInSeqNo(%d, false)) = %d, want %d", raw, got, raw)
		}
		if got := rawSeqNo(wireOutSeqNo(raw, true)); got != raw {
			t.Fatalf("rawSeqNo(wireOutSeqNo(%d, true)) = %d, want %d", raw, got, raw)
		}
		if got := rawSeqNo(wireOutSeqNo(raw, false)); got != raw {
			t.Fatalf("rawSeqNo(wireOutSeqNo(%d, false)) = %d, want %d", raw, got, raw)
		}
	}
}

func TestJournalPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.gob")

	j := NewJournal(path)
	if err := j.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if err := j.Append(PendingMessage{ChatID: 1, OutSeqNo: 0, Body: []byte("a")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append(PendingMessage{ChatID: 1, OutSeqNo: 1, Body: []byte("b")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	reloaded := NewJournal(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	pending := reloaded.PendingFor(1)
	if len(pending) != 2 {
		t.Fatalf("PendingFor(1) = %v, want 2 entries", pending)
	}
}

func TestJournalConfirmDropsThroughSeqNo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.gob")
	j := NewJournal(path)

	for i := int32(0); i < 5; i++ {
		if err := j.Append(PendingMessage{ChatID: 1, OutSeqNo: i}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := j.Confirm(1, 2); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	pending := j.PendingFor(1)
	if len(pending) != 2 {
		t.Fatalf("PendingFor(1) after Confirm(1,2) = %v, want 2 entries (seq 3, 4)", pending)
	}
	for _, p := range pending {
		if p.OutSeqNo <= 2 {
			t.Fatalf("Confirm left a message with OutSeqNo=%d <= 2", p.OutSeqNo)
		}
	}
}

func TestJournalConfirmDoesNotAffectOtherChats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.gob")
	j := NewJournal(path)

	if err := j.Append(PendingMessage{ChatID: 1, OutSeqNo: 0}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append(PendingMessage{ChatID: 2, OutSeqNo: 0}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Confirm(1, 10); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if len(j.PendingFor(1)) != 0 {
		t.Fatalf("chat 1 should be fully confirmed")
	}
	if len(j.PendingFor(2)) != 1 {
		t.Fatalf("chat 2's pending message should be untouched")
	}
}

func TestNewJournalLoadFromMissingDirIsNotAnError(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "nested", "journal.gob"))
	if err := j.Load(); err != nil {
		t.Fatalf("Load on a nonexistent path should treat it as an empty journal: %v", err)
	}
	if len(j.Pending) != 0 {
		t.Fatalf("expected empty journal")
	}
}

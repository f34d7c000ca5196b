// Package secretchat is C6: the layered plaintext construction, key
// fingerprinting, and in/out sequence tracking a secret chat needs on
// top of the core engine's ordinary encrypted RPC. Grounded on
// original_source/query_messages_send_encrypted_file.cpp's layer
// wrapping and journal-based resend, which the distilled spec (§4.6)
// only summarizes.
package secretchat

import (
	"encoding/gob"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/gotgl/tgl/internal/crypto"
	"github.com/gotgl/tgl/internal/encoding/tl"
)

// State is one secret chat's negotiated key material and sequence
// counters, the fields a restart needs to resume without
// renegotiating (spec §4.6, §6).
type State struct {
	ChatID     int64
	AdminID    int64
	IsAdmin    bool // true if this side created the chat (spec §4.6 parity bit)
	Key        []byte // 256-byte DH-derived secret
	KeyFingerprint int64
	OutSeqNo   int32
	InSeqNo    int32
	TTL        int32
}

// KeyFingerprint computes the secret chat key's fingerprint: the low
// 64 bits of SHA1(key), the same construction as an ordinary auth key
// id (mtproto_utils.cpp computes it identically for both).
func KeyFingerprint(key []byte) int64 {
	return crypto.AuthKeyID(key)
}

// DecryptedMessageLayer wraps an application-level decrypted_message
// with the layer/in_seq_no/out_seq_no envelope every secret-chat
// message carries, so the peer can detect gaps and feature-negotiate
// independently of the account-wide update engine (spec §4.6). InSeqNo
// and OutSeqNo here are the wire values — `2·n + admin bit`, not the
// raw per-side counters — matching what is actually serialized.
type DecryptedMessageLayer struct {
	Layer    int32
	InSeqNo  int32
	OutSeqNo int32
	Message  tl.Object
}

const CodeDecryptedMessageLayer uint32 = 0x1be31789

func (*DecryptedMessageLayer) CRC() uint32 { return CodeDecryptedMessageLayer }
func (d *DecryptedMessageLayer) Encode(s *tl.Serializer) {
	s.PutUint(uint32(d.Layer))
	s.PutUint(uint32(d.InSeqNo))
	s.PutUint(uint32(d.OutSeqNo))
	s.PutBytes(tl.Encode(d.Message))
}

// wireInSeqNo and wireOutSeqNo implement spec §4.6's parity encoding:
// `2·in_seq_no + (admin ? 0 : 1)` and `2·out_seq_no + (admin ? 1 : 0)`.
// rawSeqNo inverts either one, since the admin bit is always < 2.
func wireInSeqNo(raw int32, isAdmin bool) int32 {
	if isAdmin {
		return 2 * raw
	}
	return 2*raw + 1
}

func wireOutSeqNo(raw int32, isAdmin bool) int32 {
	if isAdmin {
		return 2*raw + 1
	}
	return 2 * raw
}

func rawSeqNo(wire int32) int32 { return wire / 2 }

// Wrap produces the next outgoing layer envelope for msg from the
// current InSeqNo/OutSeqNo and then advances OutSeqNo, so the next
// message takes the next slot; the caller is responsible for actually
// transmitting the encrypted result.
func (s *State) Wrap(msg tl.Object) *DecryptedMessageLayer {
	l := &DecryptedMessageLayer{
		Layer:    featureLayer,
		InSeqNo:  wireInSeqNo(s.InSeqNo, s.IsAdmin),
		OutSeqNo: wireOutSeqNo(s.OutSeqNo, s.IsAdmin),
		Message:  msg,
	}
	s.OutSeqNo++
	return l
}

// featureLayer is the secret-chat protocol layer this client
// negotiates; bumping it is a protocol decision outside this core's
// scope, so it stays a constant rather than configurable.
const featureLayer = 46

// Unwrap validates an inbound layer envelope's sequence numbers
// against the chat's expected InSeqNo, advancing it on success, and
// reports a gap the way CheckPtsDiff does for ordinary updates.
func (s *State) Unwrap(l *DecryptedMessageLayer) (applies bool, gap bool) {
	peerOutSeqNo := rawSeqNo(l.OutSeqNo)
	switch {
	case peerOutSeqNo == s.InSeqNo:
		s.InSeqNo++
		return true, false
	case peerOutSeqNo < s.InSeqNo:
		return false, false // already applied
	default:
		return false, true
	}
}

// Journal is the unconfirmed-message log: every encrypted message is
// appended before it is sent and removed once its out_seq_no is
// implicitly acknowledged by a subsequent inbound read_seq_no; on
// restart, whatever remains is resent in order (spec §4.6, grounded on
// query_messages_send_encrypted_file.cpp's retry-on-reconnect path).
type Journal struct {
	mu      sync.Mutex
	path    string
	Pending []PendingMessage
}

type PendingMessage struct {
	ChatID   int64
	OutSeqNo int32
	Body     []byte // already-serialized DecryptedMessageLayer, ready to re-encrypt and resend
}

func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Load restores the journal from disk; a missing file means an empty,
// fresh journal, not an error.
func (j *Journal) Load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "opening secret chat journal")
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&j.Pending)
}

func (j *Journal) save() error {
	j.mu.Lock()
	snapshot := append([]PendingMessage{}, j.Pending...)
	j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "opening secret chat journal for write")
	}
	defer file.Close()
	return gob.NewEncoder(file).Encode(snapshot)
}

// Append records a message as sent-but-unconfirmed and persists the
// journal immediately, since the whole point is surviving a crash
// between send and ack.
func (j *Journal) Append(msg PendingMessage) error {
	j.mu.Lock()
	j.Pending = append(j.Pending, msg)
	j.mu.Unlock()
	return j.save()
}

// Confirm drops every pending entry for chatID with OutSeqNo <=
// throughSeqNo, the effect of the peer's read_seq_no advancing.
func (j *Journal) Confirm(chatID int64, throughSeqNo int32) error {
	j.mu.Lock()
	kept := j.Pending[:0]
	for _, p := range j.Pending {
		if p.ChatID == chatID && p.OutSeqNo <= throughSeqNo {
			continue
		}
		kept = append(kept, p)
	}
	j.Pending = kept
	j.mu.Unlock()
	return j.save()
}

// PendingFor returns the unconfirmed messages for chatID in send
// order, for the resend-on-reconnect pass.
func (j *Journal) PendingFor(chatID int64) []PendingMessage {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []PendingMessage
	for _, p := range j.Pending {
		if p.ChatID == chatID {
			out = append(out, p)
		}
	}
	return out
}

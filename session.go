package mtproto

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gotgl/tgl/internal/crypto"
	"github.com/gotgl/tgl/internal/encoding/tl"
	"github.com/gotgl/tgl/internal/mode"
	"github.com/gotgl/tgl/internal/mtdump"
	"github.com/gotgl/tgl/internal/mtproto/messages"
	"github.com/gotgl/tgl/internal/mtproto/objects"
	"github.com/gotgl/tgl/internal/transport"
)

// ackFlushInterval batches outbound msgs_ack the way spec §4.2
// describes ("an ack-flush timer batches outbound msgs_ack
// containers").
const ackFlushInterval = 1 * time.Second

// Session is C2: one TCP connection bound to one DC, with its own
// session_id, strictly increasing seq_no/msg_id, and the ack tree of
// outbound messages still awaiting server acknowledgment. It frames
// and defragments messages; it never decides to retry — that is the
// query engine's job (spec §4.2).
type Session struct {
	mu sync.Mutex

	dc        *DC
	sessionID int64

	raw   transport.Conn
	frame *transport.Transport

	lastMsgID int64
	seqNo     int32

	ackTree       map[int64]bool
	ackFlushTimer Timer

	closed bool
}

func newSession(dc *DC) (*Session, error) {
	if len(dc.Options) == 0 {
		return nil, errors.Errorf("dc %d has no dial options", dc.ID)
	}
	addr := dc.Options[0].Address

	conn, err := transport.NewTCP(transport.TCPConnConfig{
		Ctx:  context.Background(),
		Host: addr,
	})
	if err != nil {
		return nil, errors.Wrap(err, "dialing dc")
	}

	sessionID, err := randomInt64()
	if err != nil {
		return nil, err
	}

	s := &Session{
		dc:        dc,
		sessionID: sessionID,
		raw:       conn,
		frame:     transport.New(conn, mode.Intermediate),
		ackTree:   make(map[int64]bool),
	}
	s.ackFlushTimer = dc.ua.timerFactory().Create(s.flushAcks)

	go s.readLoop()

	return s, nil
}

// nextMsgID assigns a client msg_id: unix time scaled to the 2^32
// sub-second units MTProto uses, strictly greater than the last one
// assigned on this session (spec §4.2); if the clock produces the
// same value, it is bumped by the smallest quantum.
func (s *Session) nextMsgID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	id := (now.Unix() << 32) | int64(uint32(now.Nanosecond())/1000*4295)
	id &^= 3 // client msg_ids are multiples of 4: the low two bits are cleared
	if id <= s.lastMsgID {
		id = s.lastMsgID + 4
	}
	s.lastMsgID = id
	return id
}

// nextSeqNo returns the seq_no for an outbound message: content
// requiring a server ack consumes an odd slot, everything else an
// even one (spec §3 Session invariants).
func (s *Session) nextSeqNo(requireAck bool) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.seqNo
	s.seqNo++
	if requireAck {
		return n*2 + 1
	}
	return n * 2
}

// send encrypts and frames body (an already-serialized TL query), and
// if requireAck is set, assigns it a fresh msg_id/seq_no and enrolls
// it in the ack tree.
func (s *Session) send(body []byte, requireAck bool) (msgID int64, seqNo int32, err error) {
	msgID = s.nextMsgID()
	seqNo = s.nextSeqNo(requireAck)

	if err := s.sendWithIDs(body, msgID, seqNo); err != nil {
		return 0, 0, err
	}

	if requireAck {
		s.mu.Lock()
		s.ackTree[msgID] = true
		s.mu.Unlock()
	}
	return msgID, seqNo, nil
}

// sendWithIDs re-serializes body under an already-assigned msg_id/seq_no,
// the shape query.alarm() needs for a single-element msg_container
// resend (spec §4.4).
func (s *Session) sendWithIDs(body []byte, msgID int64, seqNo int32) error {
	s.mu.Lock()
	authKey := s.dc.currentAuthKey()
	serverSalt := s.dc.ServerSalt
	sessionID := s.sessionID
	s.mu.Unlock()

	if len(authKey) != 256 {
		return errors.New("session: no authorization key available")
	}

	plain := buildPlainMessage(serverSalt, sessionID, msgID, seqNo, body)
	encrypted, err := encryptMessage(plain, authKey)
	if err != nil {
		return errors.Wrap(err, "encrypting message")
	}
	return s.frame.WriteFrame(encrypted)
}

// sendContainerResend re-wraps body in a single-element msg_container
// whose inner item preserves origMsgID/origSeqNo, so a late ack or
// result for the original attempt still matches the waiting query; the
// container itself goes out under a fresh outer msg_id/seq_no, since
// it is a distinct message on the wire (spec §4.4 alarm(), the
// session/session_id-unchanged branch).
func (s *Session) sendContainerResend(body []byte, origMsgID int64, origSeqNo int32) (msgID int64, seqNo int32, err error) {
	item := tl.NewSerializer()
	item.PutUint(objects.CodeMsgContainer)
	item.PutUint(1)
	item.PutLong(origMsgID)
	item.PutUint(uint32(origSeqNo))
	item.PutUint(uint32(len(body)))
	item.PutBytes(body)
	containerBody := item.Bytes()

	msgID = s.nextMsgID()
	seqNo = s.nextSeqNo(false)
	if err := s.sendWithIDs(containerBody, msgID, seqNo); err != nil {
		return 0, 0, err
	}
	return msgID, seqNo, nil
}

func buildPlainMessage(serverSalt, sessionID, msgID int64, seqNo int32, body []byte) []byte {
	buf := new(bytes.Buffer)
	w := tl.NewWriteCursor(buf)
	_ = w.PutLong(serverSalt)
	_ = w.PutLong(sessionID)
	_ = w.PutLong(msgID)
	_ = w.PutUint(uint32(seqNo))
	_ = w.PutUint(uint32(len(body)))
	_ = w.PutRawBytes(body)
	return buf.Bytes()
}

// encryptMessage pads plain to a 16-byte boundary, derives the
// msg_key from its SHA1 the way MTProto v1 specifies, and AES-IGE
// encrypts it under keys scheduled from authKey and msg_key.
func encryptMessage(plain, authKey []byte) ([]byte, error) {
	padding := (16 - len(plain)%16) % 16
	if padding < 12 {
		padding += 16
	}
	padded := make([]byte, len(plain)+padding)
	copy(padded, plain)
	if _, err := rand.Read(padded[len(plain):]); err != nil {
		return nil, err
	}

	msgKey := crypto.Sha1(padded)[4:20]
	aesKey, aesIV := deriveMessageKeys(msgKey, authKey, false)

	ciphertext, err := crypto.AESIGEEncrypt(padded, aesKey, aesIV)
	if err != nil {
		return nil, err
	}

	authKeyID := crypto.AuthKeyID(authKey)
	out := new(bytes.Buffer)
	w := tl.NewWriteCursor(out)
	_ = w.PutLong(authKeyID)
	_ = w.PutRawBytes(msgKey)
	_ = w.PutRawBytes(ciphertext)
	return out.Bytes(), nil
}

func decryptMessage(data, authKey []byte) ([]byte, error) {
	if len(data) < tl.LongLen+tl.Int128Len {
		return nil, errors.New("encrypted message shorter than header")
	}
	r := tl.NewReadCursor(bytes.NewBuffer(data))
	if _, err := r.PopLong(); err != nil { // auth_key_id, verified by caller
		return nil, err
	}
	msgKey, err := r.PopRawBytes(tl.Int128Len)
	if err != nil {
		return nil, err
	}
	ciphertext, err := r.PopRawBytes(r.Len())
	if err != nil {
		return nil, err
	}

	aesKey, aesIV := deriveMessageKeys(msgKey, authKey, true)
	return crypto.AESIGEDecrypt(ciphertext, aesKey, aesIV)
}

// deriveMessageKeys schedules the per-message AES-256 key/iv from
// msg_key and auth_key per MTProto v1 §"Defining AES Key and IV".
// decode selects the server->client (x=8) vs client->server (x=0)
// offset into auth_key.
func deriveMessageKeys(msgKey, authKey []byte, decode bool) (key, iv []byte) {
	x := 0
	if decode {
		x = 8
	}
	a := crypto.Sha1(append(append([]byte{}, msgKey...), authKey[x:x+32]...))
	b := crypto.Sha1(append(append(append([]byte{}, authKey[32+x:32+x+16]...), msgKey...), authKey[48+x:48+x+16]...))
	c := crypto.Sha1(append(append([]byte{}, authKey[64+x:64+x+32]...), msgKey...))
	d := crypto.Sha1(append(append([]byte{}, msgKey...), authKey[96+x:96+x+32]...))

	key = append(append(append([]byte{}, a[0:8]...), b[8:20]...), c[4:16]...)
	iv = append(append(append(append([]byte{}, a[8:20]...), b[0:8]...), c[16:20]...), d[0:8]...)
	return key, iv
}

// readLoop is the session's single reader goroutine; it never mutates
// query state directly — it decodes a frame into a messages.Common
// and hands it to the DC's UserAgent via dispatch, whose routeIncoming
// feeds the query engine (C4); nothing on this path reaches the update
// engine (C5).
func (s *Session) readLoop() {
	for {
		raw, err := s.frame.ReadFrame()
		if err != nil {
			warnf("dc %d: read loop stopped: %v", s.dc.ID, err)
			s.dc.ua.Callback.OnFailedLogin()
			return
		}

		s.mu.Lock()
		closed := s.closed
		authKey := s.dc.currentAuthKey()
		s.mu.Unlock()
		if closed {
			return
		}

		plain, err := decryptMessage(raw, authKey)
		if err != nil {
			continue
		}

		msg, err := parsePlainMessage(plain)
		if err != nil {
			continue
		}

		s.dispatch(msg)
	}
}

func parsePlainMessage(plain []byte) (messages.Common, error) {
	r := tl.NewReadCursor(bytes.NewBuffer(plain))
	if _, err := r.PopLong(); err != nil { // salt
		return nil, err
	}
	if _, err := r.PopLong(); err != nil { // session_id
		return nil, err
	}
	msgID, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	seqNo, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	length, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	body, err := r.PopRawBytes(int(length))
	if err != nil {
		return nil, err
	}
	return &messages.Plain{MsgID: msgID, SeqNo: int32(seqNo), Body: body}, nil
}

// dispatch decodes the generic TL envelope and routes acks, results
// and errors to the owning DC's UserAgent query table.
func (s *Session) dispatch(msg messages.Common) {
	obj, err := objects.DecodeUnknownObject(msg.GetMsg())
	if err != nil {
		mtdump.Dump(fmt.Sprintf("dc %d: undecodable message", s.dc.ID), msg.GetMsg())
		return
	}
	s.dc.ua.routeIncoming(s.dc, obj)

	if msg.GetSeqNo()&1 != 0 {
		s.queueAck(msg.GetMsgID())
	}
}

func (s *Session) queueAck(msgID int64) {
	s.mu.Lock()
	s.ackTree[msgID] = true
	s.mu.Unlock()
	s.ackFlushTimer.Start(ackFlushInterval)
}

func (s *Session) flushAcks() {
	s.mu.Lock()
	if len(s.ackTree) == 0 {
		s.mu.Unlock()
		return
	}
	ids := make([]int64, 0, len(s.ackTree))
	for id := range s.ackTree {
		ids = append(ids, id)
	}
	s.ackTree = make(map[int64]bool)
	s.mu.Unlock()

	ack := &objects.MsgsAck{MsgIDs: ids}
	_, _, _ = s.send(tl.Encode(ack), false)
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.ackFlushTimer.Cancel()
	_ = s.raw.Close()
}

func randomInt64() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

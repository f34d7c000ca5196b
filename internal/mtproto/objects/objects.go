// Package objects holds the handful of core MTProto service
// constructors the session and query engine must recognize on every
// connection: acks, errors, containers, salt/session renegotiation,
// pings and gzip framing. Schema objects specific to application
// calls (users, messages, dialogs, ...) live behind the façade in
// package telegram and are decoded through query-specific Decoders
// instead of this registry, keeping the registry narrow the way
// the generated skip/fetch/free tables are narrow in the original
// core (spec §1, §9 "Dynamic TL values").
package objects

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/gotgl/tgl/internal/encoding/tl"
)

const (
	CodeMsgContainer       uint32 = 0x73f1f8dc
	CodeRpcResult          uint32 = 0xf35c6d01
	CodeRpcError           uint32 = 0x2144ca19
	CodeBadServerSalt      uint32 = 0xedab447b
	CodeBadMsgNotification uint32 = 0xa7eff811
	CodeNewSessionCreated  uint32 = 0x9ec20908
	CodeGzipPacked         uint32 = 0x3072cfa1
	CodePing               uint32 = 0x7abe77ec
	CodePong               uint32 = 0x347773c5
	CodeMsgsAck            uint32 = 0x62d6b459
	CodeBoolTrue           uint32 = 0x997275b5
	CodeBoolFalse          uint32 = 0xbc799737
)

// MaxInflatedSize bounds gzip_packed decompression (spec §4.4: "inflated
// into a bounded (<=16 MiB) scratch buffer").
const MaxInflatedSize = 16 << 20

// Registry maps a constructor id to a decode function. It is filled by
// init() in this file for the service types, and may be extended by
// the façade for schema objects returned from application queries.
var Registry = map[uint32]tl.Decoder{}

func register(code uint32, fn tl.Decoder) { Registry[code] = fn }

// DecodeUnknownObject reads a constructor id off the front of data and
// dispatches to the registered decoder. It is the runtime-typed
// decode step the query engine and session use for everything that
// isn't a direct, statically-known query result.
func DecodeUnknownObject(data []byte) (tl.Object, error) {
	r := tl.NewReadCursor(bytes.NewBuffer(data))
	code, err := r.PopUint()
	if err != nil {
		return nil, errors.Wrap(err, "reading constructor id")
	}
	dec, ok := Registry[code]
	if !ok {
		return nil, errors.Errorf("unknown constructor 0x%08x", code)
	}
	return dec(r)
}

// PeekCode reads the leading constructor id without otherwise
// interpreting body, the way a query's handleResult distinguishes an
// rpc_error or gzip_packed wrapper from its own expected result type,
// which is never in Registry (spec §9, "Dynamic TL values").
func PeekCode(body []byte) (uint32, bool) {
	if len(body) < tl.WordLen {
		return 0, false
	}
	return binary.LittleEndian.Uint32(body[:tl.WordLen]), true
}

// InflateGzipPacked strips a gzip_packed envelope and returns its
// decompressed payload without attempting to decode it further, so a
// query whose result type isn't in Registry can still unwrap
// compression before applying its own decoder.
func InflateGzipPacked(body []byte) ([]byte, error) {
	r := tl.NewReadCursor(bytes.NewBuffer(body))
	if _, err := r.PopUint(); err != nil {
		return nil, errors.Wrap(err, "reading gzip_packed constructor id")
	}
	return inflate(r)
}

func inflate(r *tl.ReadCursor) ([]byte, error) {
	packed, err := r.PopString()
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, errors.Wrap(err, "opening gzip stream")
	}
	defer zr.Close()
	inflated, err := io.ReadAll(io.LimitReader(zr, MaxInflatedSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "inflating gzip_packed")
	}
	if len(inflated) > MaxInflatedSize {
		return nil, errors.New("gzip_packed payload exceeds 16 MiB bound")
	}
	return inflated, nil
}

type MessageContainerItem struct {
	MsgID  int64
	SeqNo  int32
	Object tl.Object
}

type MessageContainer struct {
	Items []MessageContainerItem
}

func (*MessageContainer) CRC() uint32 { return CodeMsgContainer }

func (c *MessageContainer) Encode(s *tl.Serializer) {
	s.PutUint(uint32(len(c.Items)))
	for _, it := range c.Items {
		s.PutLong(it.MsgID)
		s.PutUint(uint32(it.SeqNo))
		body := tl.Encode(it.Object)
		s.PutUint(uint32(len(body)))
		s.PutBytes(body)
	}
}

func decodeMessageContainer(r *tl.ReadCursor) (tl.Object, error) {
	n, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	c := &MessageContainer{}
	for i := uint32(0); i < n; i++ {
		msgID, err := r.PopLong()
		if err != nil {
			return nil, err
		}
		seqNo, err := r.PopUint()
		if err != nil {
			return nil, err
		}
		size, err := r.PopUint()
		if err != nil {
			return nil, err
		}
		body, err := r.PopRawBytes(int(size))
		if err != nil {
			return nil, err
		}
		obj, err := DecodeUnknownObject(body)
		if err != nil {
			return nil, errors.Wrap(err, "decoding container item")
		}
		c.Items = append(c.Items, MessageContainerItem{MsgID: msgID, SeqNo: int32(seqNo), Object: obj})
	}
	return c, nil
}

// RpcResult wraps the answer to a specific outbound msg_id. Body holds
// the result bytes undecoded; the query engine decodes them through the
// query's own expected-type decoder.
type RpcResult struct {
	ReqMsgID int64
	Body     []byte
}

func (*RpcResult) CRC() uint32 { return CodeRpcResult }
func (r *RpcResult) Encode(s *tl.Serializer) {
	s.PutLong(r.ReqMsgID)
	s.PutBytes(r.Body)
}

func decodeRpcResult(r *tl.ReadCursor) (tl.Object, error) {
	reqMsgID, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	rest, err := r.PopRawBytes(r.Len())
	if err != nil {
		return nil, err
	}
	return &RpcResult{ReqMsgID: reqMsgID, Body: rest}, nil
}

type RpcError struct {
	ErrorCode    int32
	ErrorMessage string
}

func (*RpcError) CRC() uint32 { return CodeRpcError }
func (e *RpcError) Encode(s *tl.Serializer) {
	s.PutUint(uint32(e.ErrorCode))
	s.PutString([]byte(e.ErrorMessage))
}

func decodeRpcError(r *tl.ReadCursor) (tl.Object, error) {
	code, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	msg, err := r.PopString()
	if err != nil {
		return nil, err
	}
	return &RpcError{ErrorCode: int32(code), ErrorMessage: string(msg)}, nil
}

type BadServerSalt struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
	NewSalt     int64
}

func (*BadServerSalt) CRC() uint32 { return CodeBadServerSalt }
func (b *BadServerSalt) Encode(s *tl.Serializer) {
	s.PutLong(b.BadMsgID)
	s.PutUint(uint32(b.BadMsgSeqNo))
	s.PutUint(uint32(b.ErrorCode))
	s.PutLong(b.NewSalt)
}

func decodeBadServerSalt(r *tl.ReadCursor) (tl.Object, error) {
	badMsgID, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	seqNo, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	code, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	salt, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	return &BadServerSalt{BadMsgID: badMsgID, BadMsgSeqNo: int32(seqNo), ErrorCode: int32(code), NewSalt: salt}, nil
}

type BadMsgNotification struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
}

func (*BadMsgNotification) CRC() uint32 { return CodeBadMsgNotification }
func (b *BadMsgNotification) Encode(s *tl.Serializer) {
	s.PutLong(b.BadMsgID)
	s.PutUint(uint32(b.BadMsgSeqNo))
	s.PutUint(uint32(b.ErrorCode))
}

func decodeBadMsgNotification(r *tl.ReadCursor) (tl.Object, error) {
	badMsgID, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	seqNo, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	code, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	return &BadMsgNotification{BadMsgID: badMsgID, BadMsgSeqNo: int32(seqNo), ErrorCode: int32(code)}, nil
}

type NewSessionCreated struct {
	FirstMsgID int64
	UniqueID   int64
	ServerSalt int64
}

func (*NewSessionCreated) CRC() uint32 { return CodeNewSessionCreated }
func (n *NewSessionCreated) Encode(s *tl.Serializer) {
	s.PutLong(n.FirstMsgID)
	s.PutLong(n.UniqueID)
	s.PutLong(n.ServerSalt)
}

func decodeNewSessionCreated(r *tl.ReadCursor) (tl.Object, error) {
	firstMsgID, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	uniqueID, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	salt, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	return &NewSessionCreated{FirstMsgID: firstMsgID, UniqueID: uniqueID, ServerSalt: salt}, nil
}

type GzipPacked struct {
	Obj tl.Object
}

func (*GzipPacked) CRC() uint32 { return CodeGzipPacked }
func (g *GzipPacked) Encode(s *tl.Serializer) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(tl.Encode(g.Obj))
	_ = zw.Close()
	s.PutString(buf.Bytes())
}

func decodeGzipPacked(r *tl.ReadCursor) (tl.Object, error) {
	inflated, err := inflate(r)
	if err != nil {
		return nil, err
	}
	obj, err := DecodeUnknownObject(inflated)
	if err != nil {
		return nil, errors.Wrap(err, "decoding inflated body")
	}
	return &GzipPacked{Obj: obj}, nil
}

type Ping struct {
	PingID int64
}

func (*Ping) CRC() uint32 { return CodePing }
func (p *Ping) Encode(s *tl.Serializer) {
	s.PutLong(p.PingID)
}

func decodePing(r *tl.ReadCursor) (tl.Object, error) {
	id, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	return &Ping{PingID: id}, nil
}

type Pong struct {
	MsgID  int64
	PingID int64
}

func (*Pong) CRC() uint32 { return CodePong }
func (p *Pong) Encode(s *tl.Serializer) {
	s.PutLong(p.MsgID)
	s.PutLong(p.PingID)
}

func decodePong(r *tl.ReadCursor) (tl.Object, error) {
	msgID, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	pingID, err := r.PopLong()
	if err != nil {
		return nil, err
	}
	return &Pong{MsgID: msgID, PingID: pingID}, nil
}

type MsgsAck struct {
	MsgIDs []int64
}

func (*MsgsAck) CRC() uint32 { return CodeMsgsAck }
func (a *MsgsAck) Encode(s *tl.Serializer) {
	s.PutUint(uint32(len(a.MsgIDs)))
	for _, id := range a.MsgIDs {
		s.PutLong(id)
	}
}

func decodeMsgsAck(r *tl.ReadCursor) (tl.Object, error) {
	n, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	a := &MsgsAck{}
	for i := uint32(0); i < n; i++ {
		id, err := r.PopLong()
		if err != nil {
			return nil, err
		}
		a.MsgIDs = append(a.MsgIDs, id)
	}
	return a, nil
}

type BoolTrue struct{}

func (*BoolTrue) CRC() uint32          { return CodeBoolTrue }
func (*BoolTrue) Encode(s *tl.Serializer) {}

func decodeBoolTrue(_ *tl.ReadCursor) (tl.Object, error) { return &BoolTrue{}, nil }

type BoolFalse struct{}

func (*BoolFalse) CRC() uint32           { return CodeBoolFalse }
func (*BoolFalse) Encode(s *tl.Serializer) {}

func decodeBoolFalse(_ *tl.ReadCursor) (tl.Object, error) { return &BoolFalse{}, nil }

func init() {
	register(CodeMsgContainer, decodeMessageContainer)
	register(CodeRpcResult, decodeRpcResult)
	register(CodeRpcError, decodeRpcError)
	register(CodeBadServerSalt, decodeBadServerSalt)
	register(CodeBadMsgNotification, decodeBadMsgNotification)
	register(CodeNewSessionCreated, decodeNewSessionCreated)
	register(CodeGzipPacked, decodeGzipPacked)
	register(CodePing, decodePing)
	register(CodePong, decodePong)
	register(CodeMsgsAck, decodeMsgsAck)
	register(CodeBoolTrue, decodeBoolTrue)
	register(CodeBoolFalse, decodeBoolFalse)
}

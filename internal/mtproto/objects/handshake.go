package objects

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/gotgl/tgl/internal/encoding/tl"
)

// The handshake constructors below (req_pq_multi through
// dh_gen_fail) are the unencrypted plaintext messages exchanged only
// once, before an auth key exists; they are not part of Registry
// because they never arrive wrapped in an rpc_result — the handshake
// driver in handshake.go decodes them directly off the wire.
const (
	CodeReqPQMulti          uint32 = 0xbe7e8ef1
	CodeResPQ               uint32 = 0x05162463
	CodePQInnerData         uint32 = 0x83c95aec
	CodeReqDHParams         uint32 = 0xd712e4be
	CodeServerDHParamsFail  uint32 = 0x79cb045d
	CodeServerDHParamsOk    uint32 = 0xd0e8075c
	CodeServerDHInnerData   uint32 = 0xb5890dba
	CodeClientDHInnerData   uint32 = 0x6643b654
	CodeSetClientDHParams   uint32 = 0xf5045f1f
	CodeDHGenOk             uint32 = 0x3bcbf734
	CodeDHGenRetry          uint32 = 0x46dc1fb9
	CodeDHGenFail           uint32 = 0xa69dae02
)

type ReqPQMulti struct {
	Nonce []byte // int128
}

func (*ReqPQMulti) CRC() uint32 { return CodeReqPQMulti }
func (r *ReqPQMulti) Encode(s *tl.Serializer) { s.PutBytes(r.Nonce) }

type ResPQ struct {
	Nonce                       []byte
	ServerNonce                 []byte
	PQ                          []byte
	ServerPublicKeyFingerprints []int64
}

func (*ResPQ) CRC() uint32 { return CodeResPQ }
func (r *ResPQ) Encode(s *tl.Serializer) {
	s.PutBytes(r.Nonce)
	s.PutBytes(r.ServerNonce)
	s.PutString(r.PQ)
	s.PutUint(0x1cb5c415) // vector constructor id
	s.PutUint(uint32(len(r.ServerPublicKeyFingerprints)))
	for _, fp := range r.ServerPublicKeyFingerprints {
		s.PutLong(fp)
	}
}

func decodeResPQ(r *tl.ReadCursor) (tl.Object, error) {
	nonce, err := r.PopRawBytes(tl.Int128Len)
	if err != nil {
		return nil, err
	}
	serverNonce, err := r.PopRawBytes(tl.Int128Len)
	if err != nil {
		return nil, err
	}
	pq, err := r.PopString()
	if err != nil {
		return nil, err
	}
	if _, err := r.PopUint(); err != nil { // vector constructor id
		return nil, err
	}
	n, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	fps := make([]int64, 0, n)
	for i := uint32(0); i < n; i++ {
		fp, err := r.PopLong()
		if err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return &ResPQ{Nonce: nonce, ServerNonce: serverNonce, PQ: pq, ServerPublicKeyFingerprints: fps}, nil
}

// PQInnerData is serialized, RSA-encrypted and sent inside
// req_DH_params; it is never decoded by this client.
type PQInnerData struct {
	PQ          []byte
	P           []byte
	Q           []byte
	Nonce       []byte
	ServerNonce []byte
	NewNonce    []byte
}

func (*PQInnerData) CRC() uint32 { return CodePQInnerData }
func (d *PQInnerData) Encode(s *tl.Serializer) {
	s.PutString(d.PQ)
	s.PutString(d.P)
	s.PutString(d.Q)
	s.PutBytes(d.Nonce)
	s.PutBytes(d.ServerNonce)
	s.PutBytes(d.NewNonce)
}

type ReqDHParams struct {
	Nonce                []byte
	ServerNonce          []byte
	P                    []byte
	Q                    []byte
	PublicKeyFingerprint int64
	EncryptedData        []byte
}

func (*ReqDHParams) CRC() uint32 { return CodeReqDHParams }
func (r *ReqDHParams) Encode(s *tl.Serializer) {
	s.PutBytes(r.Nonce)
	s.PutBytes(r.ServerNonce)
	s.PutString(r.P)
	s.PutString(r.Q)
	s.PutLong(r.PublicKeyFingerprint)
	s.PutString(r.EncryptedData)
}

// ServerDHParams is either ok (carrying an encrypted answer) or fail;
// the handshake driver type-switches on it.
type ServerDHParams struct {
	Ok              bool
	Nonce           []byte
	ServerNonce     []byte
	NewNonceHash    []byte // only set when !Ok
	EncryptedAnswer []byte // only set when Ok

	fail []byte // scratch: decodeServerDHParams's undifferentiated tail
}

func (*ServerDHParams) CRC() uint32 { return CodeServerDHParamsOk } // Encode unused: never re-sent
func (*ServerDHParams) Encode(*tl.Serializer)                      {}

func decodeServerDHParams(r *tl.ReadCursor) (tl.Object, error) {
	nonce, err := r.PopRawBytes(tl.Int128Len)
	if err != nil {
		return nil, err
	}
	serverNonce, err := r.PopRawBytes(tl.Int128Len)
	if err != nil {
		return nil, err
	}
	rest, err := r.PopRawBytes(r.Len())
	if err != nil {
		return nil, err
	}
	return &ServerDHParams{Nonce: nonce, ServerNonce: serverNonce, fail: rest}, nil
}

func decodeServerDHParamsOk(r *tl.ReadCursor) (tl.Object, error) {
	p, err := decodeServerDHParams(r)
	if err != nil {
		return nil, err
	}
	d := p.(*ServerDHParams)
	d.Ok = true
	d.EncryptedAnswer = d.fail
	d.fail = nil
	return d, nil
}

func decodeServerDHParamsFail(r *tl.ReadCursor) (tl.Object, error) {
	p, err := decodeServerDHParams(r)
	if err != nil {
		return nil, err
	}
	d := p.(*ServerDHParams)
	d.Ok = false
	d.NewNonceHash = d.fail
	d.fail = nil
	return d, nil
}

// ServerDHInnerData is the AES-IGE-decrypted body of a
// server_DH_params_ok's encrypted_answer.
type ServerDHInnerData struct {
	Nonce       []byte
	ServerNonce []byte
	G           int32
	DhPrime     []byte
	GA          []byte
	ServerTime  int32
}

func (*ServerDHInnerData) CRC() uint32        { return CodeServerDHInnerData }
func (*ServerDHInnerData) Encode(*tl.Serializer) {}

// DecodeServerDHInnerData decodes an already-decrypted inner blob; it
// also validates and strips the constructor id, since the caller gets
// here from raw decrypted bytes rather than DecodeUnknownObject's
// registry dispatch (this constructor appears only inside a
// handshake, never in Registry).
func DecodeServerDHInnerData(plain []byte) (*ServerDHInnerData, error) {
	r := tl.NewReadCursor(bytes.NewBuffer(plain))
	code, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	if code != CodeServerDHInnerData {
		return nil, errors.Errorf("expected server_DH_inner_data, got 0x%08x", code)
	}
	nonce, err := r.PopRawBytes(tl.Int128Len)
	if err != nil {
		return nil, err
	}
	serverNonce, err := r.PopRawBytes(tl.Int128Len)
	if err != nil {
		return nil, err
	}
	g, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	dhPrime, err := r.PopString()
	if err != nil {
		return nil, err
	}
	ga, err := r.PopString()
	if err != nil {
		return nil, err
	}
	serverTime, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	return &ServerDHInnerData{
		Nonce:       nonce,
		ServerNonce: serverNonce,
		G:           int32(g),
		DhPrime:     dhPrime,
		GA:          ga,
		ServerTime:  int32(serverTime),
	}, nil
}

type ClientDHInnerData struct {
	Nonce       []byte
	ServerNonce []byte
	Retry       int64
	GB          []byte
}

func (*ClientDHInnerData) CRC() uint32 { return CodeClientDHInnerData }
func (d *ClientDHInnerData) Encode(s *tl.Serializer) {
	s.PutBytes(d.Nonce)
	s.PutBytes(d.ServerNonce)
	s.PutLong(d.Retry)
	s.PutString(d.GB)
}

type SetClientDHParams struct {
	Nonce         []byte
	ServerNonce   []byte
	EncryptedData []byte
}

func (*SetClientDHParams) CRC() uint32 { return CodeSetClientDHParams }
func (s2 *SetClientDHParams) Encode(s *tl.Serializer) {
	s.PutBytes(s2.Nonce)
	s.PutBytes(s2.ServerNonce)
	s.PutString(s2.EncryptedData)
}

// SetClientDHParamsAnswer is dh_gen_ok / dh_gen_retry / dh_gen_fail;
// only the Status and NewNonceHash distinguishing field differ.
type SetClientDHParamsAnswer struct {
	Status       uint32 // one of the Code* constants above
	Nonce        []byte
	ServerNonce  []byte
	NewNonceHash []byte
}

func (a *SetClientDHParamsAnswer) CRC() uint32          { return a.Status }
func (*SetClientDHParamsAnswer) Encode(*tl.Serializer) {}

func decodeSetClientDHParamsAnswer(status uint32) tl.Decoder {
	return func(r *tl.ReadCursor) (tl.Object, error) {
		nonce, err := r.PopRawBytes(tl.Int128Len)
		if err != nil {
			return nil, err
		}
		serverNonce, err := r.PopRawBytes(tl.Int128Len)
		if err != nil {
			return nil, err
		}
		hash, err := r.PopRawBytes(tl.Int128Len)
		if err != nil {
			return nil, err
		}
		return &SetClientDHParamsAnswer{Status: status, Nonce: nonce, ServerNonce: serverNonce, NewNonceHash: hash}, nil
	}
}

// handshakeRegistry is separate from Registry: these constructors
// only ever appear as the direct, unwrapped top-level reply to a
// handshake step, decoded by handshake.go's own small dispatch.
var handshakeRegistry = map[uint32]tl.Decoder{}

func init() {
	handshakeRegistry[CodeResPQ] = decodeResPQ
	handshakeRegistry[CodeServerDHParamsOk] = decodeServerDHParamsOk
	handshakeRegistry[CodeServerDHParamsFail] = decodeServerDHParamsFail
	handshakeRegistry[CodeDHGenOk] = decodeSetClientDHParamsAnswer(CodeDHGenOk)
	handshakeRegistry[CodeDHGenRetry] = decodeSetClientDHParamsAnswer(CodeDHGenRetry)
	handshakeRegistry[CodeDHGenFail] = decodeSetClientDHParamsAnswer(CodeDHGenFail)
}

// DecodeHandshakeObject dispatches through handshakeRegistry instead
// of Registry.
func DecodeHandshakeObject(data []byte) (tl.Object, error) {
	r := tl.NewReadCursor(bytes.NewBuffer(data))
	code, err := r.PopUint()
	if err != nil {
		return nil, errors.Wrap(err, "reading constructor id")
	}
	dec, ok := handshakeRegistry[code]
	if !ok {
		return nil, errors.Errorf("unexpected handshake constructor 0x%08x", code)
	}
	return dec(r)
}

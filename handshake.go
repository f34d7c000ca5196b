package mtproto

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/gotgl/tgl/internal/crypto"
	"github.com/gotgl/tgl/internal/encoding/tl"
	"github.com/gotgl/tgl/internal/mode"
	"github.com/gotgl/tgl/internal/mtproto/objects"
	"github.com/gotgl/tgl/internal/transport"
)

// handshakeConn is the plaintext, pre-authorization half of C2: a
// handshake runs on a fresh connection of its own, exchanges six
// unencrypted messages (req_pq_multi / req_DH_params /
// set_client_DH_params and their replies), and produces the 2048-bit
// auth key that Session.send encrypts everything else under. Grounded
// on mtproto_utils.cpp's tglmp_encrypt_inner_temp / rsa_decrypt and
// queries.cpp's key-exchange driver.
type handshakeConn struct {
	frame *transport.Transport
}

func dialHandshake(ctx context.Context, addr string) (*handshakeConn, error) {
	conn, err := transport.NewTCP(transport.TCPConnConfig{Ctx: ctx, Host: addr})
	if err != nil {
		return nil, errors.Wrap(err, "dialing dc for handshake")
	}
	return &handshakeConn{frame: transport.New(conn, mode.Intermediate)}, nil
}

func (h *handshakeConn) close() { _ = h.frame.Close() }

// send wraps body in the unencrypted message envelope (auth_key_id=0,
// msg_id, length, body — no salt, session_id, seq_no or encryption)
// and writes one frame.
func (h *handshakeConn) send(body []byte) error {
	buf := new(bytes.Buffer)
	w := tl.NewWriteCursor(buf)
	_ = w.PutLong(0) // auth_key_id
	_ = w.PutLong(plaintextMsgID())
	_ = w.PutUint(uint32(len(body)))
	_ = w.PutRawBytes(body)
	return h.frame.WriteFrame(buf.Bytes())
}

// recv reads one frame and strips the same envelope, returning the
// plain TL body.
func (h *handshakeConn) recv() ([]byte, error) {
	raw, err := h.frame.ReadFrame()
	if err != nil {
		return nil, err
	}
	r := tl.NewReadCursor(bytes.NewBuffer(raw))
	if _, err := r.PopLong(); err != nil { // auth_key_id, always 0 here
		return nil, err
	}
	if _, err := r.PopLong(); err != nil { // msg_id
		return nil, err
	}
	length, err := r.PopUint()
	if err != nil {
		return nil, err
	}
	return r.PopRawBytes(int(length))
}

func plaintextMsgID() int64 {
	return time.Now().UnixNano() &^ 3
}

// runHandshake executes the full key exchange against dc's first dial
// option and installs the resulting permanent auth key, matching the
// DC state transitions StateInit -> StateHandshaking -> StateHavePermanent
// (spec §4.3), then on to StateConfigured when PFS is off. With PFS on
// the DC stays in StateHavePermanent: no temporary key is negotiated.
func runHandshake(ctx context.Context, ua *UserAgent, dc *DC) error {
	if len(dc.Options) == 0 {
		return errors.Errorf("dc %d has no dial options", dc.ID)
	}
	if len(ua.publicKeys) == 0 {
		return errors.New("handshake: no RSA public keys configured")
	}

	dc.setState(StateHandshaking)

	h, err := dialHandshake(ctx, dc.Options[0].Address)
	if err != nil {
		return err
	}
	defer h.close()

	nonce := randBytes(16)

	if err := h.send(tl.Encode(&objects.ReqPQMulti{Nonce: nonce})); err != nil {
		return errors.Wrap(err, "sending req_pq_multi")
	}
	resPQBody, err := h.recv()
	if err != nil {
		return errors.Wrap(err, "receiving res_pq")
	}
	resPQObj, err := objects.DecodeHandshakeObject(resPQBody)
	if err != nil {
		return err
	}
	resPQ, ok := resPQObj.(*objects.ResPQ)
	if !ok {
		return errors.New("handshake: expected res_pq")
	}
	if !bytes.Equal(resPQ.Nonce, nonce) {
		return errors.New("handshake: nonce mismatch on res_pq")
	}

	pub := ua.publicKeyFor(0)
	if pub == nil {
		return errors.New("handshake: no usable public key")
	}

	pqInt := new(big.Int).SetBytes(resPQ.PQ)
	p, q, err := crypto.Factorize(pqInt.Uint64())
	if err != nil {
		return errors.Wrap(err, "factorizing pq")
	}
	pBytes := big.NewInt(0).SetUint64(p).Bytes()
	qBytes := big.NewInt(0).SetUint64(q).Bytes()

	newNonce := randBytes(32)

	inner := &objects.PQInnerData{
		PQ:          resPQ.PQ,
		P:           pBytes,
		Q:           qBytes,
		Nonce:       nonce,
		ServerNonce: resPQ.ServerNonce,
		NewNonce:    newNonce,
	}
	encryptedInner, err := encryptRSAPadded(tl.Encode(inner), pub)
	if err != nil {
		return errors.Wrap(err, "rsa-encrypting pq_inner_data")
	}
	fingerprint, err := crypto.Fingerprint(pub)
	if err != nil {
		return err
	}

	if err := h.send(tl.Encode(&objects.ReqDHParams{
		Nonce:                nonce,
		ServerNonce:          resPQ.ServerNonce,
		P:                    pBytes,
		Q:                    qBytes,
		PublicKeyFingerprint: int64(binary.LittleEndian.Uint64(fingerprint)),
		EncryptedData:        encryptedInner,
	})); err != nil {
		return errors.Wrap(err, "sending req_DH_params")
	}

	dhBody, err := h.recv()
	if err != nil {
		return errors.Wrap(err, "receiving server_DH_params")
	}
	dhObj, err := objects.DecodeHandshakeObject(dhBody)
	if err != nil {
		return err
	}
	serverDH, ok := dhObj.(*objects.ServerDHParams)
	if !ok || !serverDH.Ok {
		return errors.New("handshake: server_DH_params_fail")
	}

	tmpKey, tmpIV := tempAESKeyIV(newNonce, resPQ.ServerNonce)
	decrypted, err := crypto.AESIGEDecrypt(serverDH.EncryptedAnswer, tmpKey, tmpIV)
	if err != nil {
		return errors.Wrap(err, "decrypting server_DH_params answer")
	}
	inner2, err := objects.DecodeServerDHInnerData(decrypted)
	if err != nil {
		return err
	}

	dhPrime := new(big.Int).SetBytes(inner2.DhPrime)
	if !crypto.DHParamsAcceptable(dhPrime, int64(inner2.G)) {
		return errors.New("handshake: server DH parameters rejected")
	}
	gA := new(big.Int).SetBytes(inner2.GA)
	if !crypto.GAAcceptable(gA, dhPrime) {
		return errors.New("handshake: g_a out of acceptable range")
	}

	bBytes := randBytes(256)
	b := new(big.Int).SetBytes(bBytes)
	g := big.NewInt(int64(inner2.G))
	gB := new(big.Int).Exp(g, b, dhPrime)
	authKeyInt := new(big.Int).Exp(gA, b, dhPrime)
	authKey := leftPad(authKeyInt.Bytes(), 256)

	clientInner := &objects.ClientDHInnerData{
		Nonce:       nonce,
		ServerNonce: resPQ.ServerNonce,
		Retry:       0,
		GB:          gB.Bytes(),
	}
	encryptedClientInner, err := aesIGEPadded(tl.Encode(clientInner), tmpKey, tmpIV)
	if err != nil {
		return err
	}

	if err := h.send(tl.Encode(&objects.SetClientDHParams{
		Nonce:         nonce,
		ServerNonce:   resPQ.ServerNonce,
		EncryptedData: encryptedClientInner,
	})); err != nil {
		return errors.Wrap(err, "sending set_client_DH_params")
	}

	answerBody, err := h.recv()
	if err != nil {
		return errors.Wrap(err, "receiving dh_gen answer")
	}
	answerObj, err := objects.DecodeHandshakeObject(answerBody)
	if err != nil {
		return err
	}
	answer, ok := answerObj.(*objects.SetClientDHParamsAnswer)
	if !ok {
		return errors.New("handshake: unexpected set_client_DH_params answer")
	}
	if answer.Status != objects.CodeDHGenOk {
		return errors.Errorf("handshake: dh_gen failed with status 0x%08x", answer.Status)
	}

	dc.mu.Lock()
	dc.AuthKey = authKey
	dc.AuthKeyID = crypto.AuthKeyID(authKey)
	dc.mu.Unlock()
	dc.setState(StateHavePermanent)
	if !ua.PFSEnabled {
		dc.setState(StateConfigured)
	}

	return nil
}

// tempAESKeyIV derives the one-time key/iv that protects
// server_DH_params' encrypted_answer and set_client_DH_params'
// encrypted_data, per MTProto's "Presenting proof of work" step.
func tempAESKeyIV(newNonce, serverNonce []byte) (key, iv []byte) {
	a := crypto.Sha1(append(append([]byte{}, newNonce...), serverNonce...))
	b := crypto.Sha1(append(append([]byte{}, serverNonce...), newNonce...))
	c := crypto.Sha1(append(append([]byte{}, newNonce...), newNonce...))

	key = append(append([]byte{}, a...), b[:12]...)
	iv = append(append(append(append([]byte{}, b[12:20]...), c...), newNonce[:4]...))
	return key, iv
}

// aesIGEPadded pads plain to a 16-byte boundary with random bytes
// before IGE-encrypting it, the shape client_DH_inner_data needs
// (pq_inner_data goes through encryptRSAPadded instead).
func aesIGEPadded(plain, key, iv []byte) ([]byte, error) {
	pad := (16 - len(plain)%16) % 16
	if pad > 0 {
		padded := make([]byte, len(plain)+pad)
		copy(padded, plain)
		if _, err := rand.Read(padded[len(plain):]); err != nil {
			return nil, err
		}
		plain = padded
	}
	return crypto.AESIGEEncrypt(plain, key, iv)
}

// encryptRSAPadded applies the original MTProto RSA padding (a SHA1
// digest of data prefixed to data itself, random-filled out to 255
// bytes so the block sits safely under a 2048-bit modulus) before raw
// RSA encryption (mtproto_utils.cpp's rsa_pad_and_encrypt).
func encryptRSAPadded(data []byte, pub *rsa.PublicKey) ([]byte, error) {
	const blockLen = 255
	digest := crypto.Sha1(data)
	if len(digest)+len(data) > blockLen {
		return nil, errors.New("handshake: pq_inner_data too large to RSA-pad")
	}
	block := make([]byte, blockLen)
	copy(block, digest)
	copy(block[len(digest):], data)
	if _, err := rand.Read(block[len(digest)+len(data):]); err != nil {
		return nil, err
	}
	return crypto.RSAEncrypt(block, pub), nil
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

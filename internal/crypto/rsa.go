package crypto

import (
	"crypto/rsa"
	"math/big"

	"github.com/pkg/errors"
)

// RSAEncrypt performs the raw RSA encryption MTProto's handshake uses:
// the 255-byte (sha1-hash || data || padding) block is treated as a
// big-endian integer, raised to e mod n directly — not the PKCS#1 v1.5
// padding stdlib's rsa.EncryptPKCS1v15 would apply, since Telegram's
// own padding already occupies that space (grounded on
// zweihander-mtproto__handshake.go's doRSAencrypt call site).
func RSAEncrypt(data []byte, pub *rsa.PublicKey) []byte {
	m := new(big.Int).SetBytes(data)
	e := big.NewInt(int64(pub.E))
	c := new(big.Int).Exp(m, e, pub.N)

	out := c.Bytes()
	if len(out) < 256 {
		padded := make([]byte, 256)
		copy(padded[256-len(out):], out)
		out = padded
	}
	return out
}

// Fingerprint computes the RSA public key fingerprint MTProto uses to
// select among several server keys: the low 64 bits of
// SHA1(TL-serialized RSA public key), little-endian.
func Fingerprint(pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, errors.New("rsa: nil public key")
	}
	n := pub.N.Bytes()
	e := big.NewInt(int64(pub.E)).Bytes()

	buf := make([]byte, 0, len(n)+len(e)+16)
	buf = appendTLBytes(buf, n)
	buf = appendTLBytes(buf, e)

	digest := Sha1(buf)
	fp := make([]byte, 8)
	copy(fp, digest[12:20])
	return fp, nil
}

func appendTLBytes(buf, data []byte) []byte {
	l := len(data)
	if l < 254 {
		buf = append(buf, byte(l))
	} else {
		buf = append(buf, 0xfe, byte(l), byte(l>>8), byte(l>>16))
	}
	buf = append(buf, data...)
	for (len(buf))%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"
)

func TestRSAEncryptMatchesRawModExp(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	pub := &priv.PublicKey

	data := make([]byte, 255)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand data: %v", err)
	}

	got := RSAEncrypt(data, pub)

	m := new(big.Int).SetBytes(data)
	e := big.NewInt(int64(pub.E))
	want := new(big.Int).Exp(m, e, pub.N).Bytes()
	// RSAEncrypt left-pads to 256 bytes; compare against the
	// unpadded raw modexp on the tail.
	if len(got) != 256 {
		t.Fatalf("RSAEncrypt output length = %d, want 256", len(got))
	}
	gotTrimmed := got[256-len(want):]
	for i := range want {
		if gotTrimmed[i] != want[i] {
			t.Fatalf("RSAEncrypt does not match raw mod-exp at byte %d", i)
		}
	}

	// and it must actually decrypt back under the private key via the
	// same raw mod-exp (c^d mod n == m).
	c := new(big.Int).SetBytes(got)
	recovered := new(big.Int).Exp(c, priv.D, pub.N).Bytes()
	recovered = leftPadForTest(recovered, len(data))
	for i := range data {
		if recovered[i] != data[i] {
			t.Fatalf("decrypted byte %d = %d, want %d", i, recovered[i], data[i])
		}
	}
}

func leftPadForTest(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

func TestFingerprintDeterministicAndDiffers(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, 2048)
	priv2, _ := rsa.GenerateKey(rand.Reader, 2048)

	fp1, err := Fingerprint(&priv1.PublicKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	fp1b, err := Fingerprint(&priv1.PublicKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if string(fp1) != string(fp1b) {
		t.Fatalf("Fingerprint is not deterministic")
	}

	fp2, err := Fingerprint(&priv2.PublicKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if string(fp1) == string(fp2) {
		t.Fatalf("Fingerprint did not differ between distinct keys")
	}
}

func TestFingerprintRejectsNilKey(t *testing.T) {
	if _, err := Fingerprint(nil); err == nil {
		t.Fatalf("expected an error for a nil public key")
	}
}

package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func writePublicKeyPEM(t *testing.T, path string, pubs ...*rsa.PublicKey) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	for _, pub := range pubs {
		block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)}
		if err := pem.Encode(f, block); err != nil {
			t.Fatalf("pem encode: %v", err)
		}
	}
}

func TestReadFromFileParsesPKCS1Keys(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}

	path := filepath.Join(t.TempDir(), "keys.pem")
	writePublicKeyPEM(t, path, &priv.PublicKey)

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d keys, want 1", len(got))
	}
	if got[0].N.Cmp(priv.PublicKey.N) != 0 || got[0].E != priv.PublicKey.E {
		t.Fatalf("parsed key does not match the original")
	}
}

func TestReadFromFileParsesMultipleKeys(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, 2048)
	priv2, _ := rsa.GenerateKey(rand.Reader, 2048)

	path := filepath.Join(t.TempDir(), "keys.pem")
	writePublicKeyPEM(t, path, &priv1.PublicKey, &priv2.PublicKey)

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d keys, want 2", len(got))
	}
}

func TestReadFromFileRejectsMissingFile(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Fatalf("expected an error reading a missing file")
	}
}

func TestReadFromFileRejectsFileWithoutPEMBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nopem.pem")
	if err := os.WriteFile(path, []byte("not a pem file"), 0o600); err != nil {
		t.Fatalf("writing non-PEM file: %v", err)
	}
	if _, err := ReadFromFile(path); err == nil {
		t.Fatalf("expected an error reading a file with no PEM blocks")
	}
}

func TestRSAFingerprintIsStableAndDiffersBetweenKeys(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, 2048)
	priv2, _ := rsa.GenerateKey(rand.Reader, 2048)

	fp1, err := RSAFingerprint(&priv1.PublicKey)
	if err != nil {
		t.Fatalf("RSAFingerprint: %v", err)
	}
	fp1Again, err := RSAFingerprint(&priv1.PublicKey)
	if err != nil {
		t.Fatalf("RSAFingerprint: %v", err)
	}
	if string(fp1) != string(fp1Again) {
		t.Fatalf("RSAFingerprint is not deterministic")
	}

	fp2, err := RSAFingerprint(&priv2.PublicKey)
	if err != nil {
		t.Fatalf("RSAFingerprint: %v", err)
	}
	if string(fp1) == string(fp2) {
		t.Fatalf("RSAFingerprint did not differ between distinct keys")
	}
	if len(fp1) != 8 {
		t.Fatalf("fingerprint length = %d, want 8", len(fp1))
	}
}

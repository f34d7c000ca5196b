// Package keys loads the server RSA public keys used during DH
// handshake. telegram.NewClient reads them from a PEM bundle the
// embedding application ships (see NewClient in telegram/client.go), the way the
// teacher's Client does through "internal/keys" — a package the
// teacher references but the retrieval pack didn't include a copy of,
// so it is reconstructed here per spec §6's RSA collaborator
// interface.
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/pkg/errors"

	"github.com/gotgl/tgl/internal/crypto"
)

// ReadFromFile parses a file containing one or more PEM-encoded RSA
// public keys (Telegram publishes its DC keys in this format).
func ReadFromFile(path string) ([]*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading public key file")
	}

	var keys []*rsa.PublicKey
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		pub, err := parseRSAPublicKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "parsing rsa public key")
		}
		keys = append(keys, pub)
	}

	if len(keys) == 0 {
		return nil, errors.Errorf("no PEM-encoded public keys found in %s", path)
	}
	return keys, nil
}

func parseRSAPublicKey(der []byte) (*rsa.PublicKey, error) {
	if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return pub, nil
	}
	generic, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	pub, ok := generic.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return pub, nil
}

// RSAFingerprint returns the 8-byte little-endian fingerprint MTProto
// uses to select a server key during handshake (§6).
func RSAFingerprint(pub *rsa.PublicKey) ([]byte, error) {
	return crypto.Fingerprint(pub)
}

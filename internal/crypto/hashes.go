package crypto

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
)

func Sha1(data []byte) []byte {
	h := sha1.Sum(data)
	return h[:]
}

func Sha256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func MD5(data []byte) []byte {
	h := md5.Sum(data)
	return h[:]
}

// AuthKeyID derives the 64-bit auth_key_id as the low 64 bits of
// SHA1(auth_key), i.e. bytes [12:20) of the digest — see
// mtproto_utils.cpp and the testable property in spec §8
// ("auth_key_id = low64(sha1(auth_key)[12..20])").
func AuthKeyID(authKey []byte) int64 {
	digest := Sha1(authKey)
	var v int64
	for i := 0; i < 8; i++ {
		v |= int64(digest[12+i]) << (8 * i)
	}
	return v
}

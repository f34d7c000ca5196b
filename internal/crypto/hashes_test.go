package crypto

import (
	"crypto/sha1"
	"testing"
)

func TestSha1MatchesStdlib(t *testing.T) {
	data := []byte("mtproto")
	want := sha1.Sum(data)
	got := Sha1(data)
	if len(got) != len(want) {
		t.Fatalf("length mismatch")
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sha1 mismatch at byte %d", i)
		}
	}
}

func TestAuthKeyIDIsLow64BitsOfSha1(t *testing.T) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(i)
	}
	digest := Sha1(authKey)

	var want int64
	for i := 0; i < 8; i++ {
		want |= int64(digest[12+i]) << (8 * i)
	}

	if got := AuthKeyID(authKey); got != want {
		t.Fatalf("AuthKeyID = %x, want %x", got, want)
	}
}

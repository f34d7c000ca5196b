package crypto

import (
	"math/big"
	"testing"
)

// a known-good 2048-bit DH safe prime: the RFC 3526 group 14 MODP
// prime, which satisfies every row of the residue table.
const rfc2409Prime2048Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"

func TestDHParamsAcceptableAcceptsRealGroup14Prime(t *testing.T) {
	p, _ := new(big.Int).SetString(rfc2409Prime2048Hex, 16)
	// RFC3526 group 14 is a genuine safe prime; p mod 8 = 7, p mod 3 = 2,
	// p mod 5 = 4, p mod 24 = 23 and p mod 7 = 5, so g=2..6 all satisfy
	// the residue table, and so does g=7.
	for _, g := range []int64{2, 3, 4, 5, 6} {
		if !DHParamsAcceptable(p, g) {
			t.Fatalf("DHParamsAcceptable rejected known-good (p, g=%d)", g)
		}
	}
	if !DHParamsAcceptable(p, 7) {
		t.Fatalf("DHParamsAcceptable rejected g=7 although p mod 7 = 5 is an accepted residue")
	}
}

func TestDHParamsAcceptableRejectsBadG(t *testing.T) {
	p, _ := new(big.Int).SetString(rfc2409Prime2048Hex, 16)
	for _, g := range []int64{0, 1, 8, -1} {
		if DHParamsAcceptable(p, g) {
			t.Fatalf("DHParamsAcceptable accepted g=%d, want rejection", g)
		}
	}
}

func TestDHParamsAcceptableRejectsWrongBitLength(t *testing.T) {
	small := big.NewInt(23) // tiny prime, nowhere near 2048 bits
	if DHParamsAcceptable(small, 5) {
		t.Fatalf("DHParamsAcceptable accepted an undersized prime")
	}
}

func TestDHParamsAcceptableRejectsComposite(t *testing.T) {
	p, _ := new(big.Int).SetString(rfc2409Prime2048Hex, 16)
	composite := new(big.Int).Add(p, big.NewInt(2)) // p+2 is divisible by 7, not prime
	if DHParamsAcceptable(composite, 2) {
		t.Fatalf("DHParamsAcceptable accepted a non-prime modulus")
	}
}

func TestGAAcceptableRejectsOutOfRangeValues(t *testing.T) {
	p, _ := new(big.Int).SetString(rfc2409Prime2048Hex, 16)

	if GAAcceptable(big.NewInt(1), p) {
		t.Fatalf("GAAcceptable accepted g_a=1")
	}
	if GAAcceptable(big.NewInt(0), p) {
		t.Fatalf("GAAcceptable accepted g_a=0")
	}
	pMinusOne := new(big.Int).Sub(p, big.NewInt(1))
	if GAAcceptable(pMinusOne, p) {
		t.Fatalf("GAAcceptable accepted g_a=p-1")
	}
	tooSmall := big.NewInt(12345)
	if GAAcceptable(tooSmall, p) {
		t.Fatalf("GAAcceptable accepted a g_a far below the 2^(2048-64) bound")
	}
}

func TestGAAcceptableAcceptsMidRangeValue(t *testing.T) {
	p, _ := new(big.Int).SetString(rfc2409Prime2048Hex, 16)
	mid := new(big.Int).Rsh(p, 1) // p/2, comfortably within bounds
	if !GAAcceptable(mid, p) {
		t.Fatalf("GAAcceptable rejected p/2, expected acceptance")
	}
}

package crypto

import "math/big"

// DHParamsAcceptable checks a received (p, g) pair against spec §6:
// g in [2,7]; p is a probable 2048-bit prime; (p-1)/2 is a probable
// prime; and p matches the published residue table for g (p mod 8 for
// g=2, p mod 3 for g=3, p mod 5 for g=5, p mod 24 for g=6, p mod 7 for
// g=7; g=4 has no residue condition).
func DHParamsAcceptable(p *big.Int, g int64) bool {
	if g < 2 || g > 7 {
		return false
	}
	if p.BitLen() != 2048 {
		return false
	}
	if !p.ProbablyPrime(32) {
		return false
	}
	pMinusOneHalf := new(big.Int).Sub(p, big.NewInt(1))
	pMinusOneHalf.Rsh(pMinusOneHalf, 1)
	if !pMinusOneHalf.ProbablyPrime(32) {
		return false
	}

	mod4g := new(big.Int).Mod(p, big.NewInt(4*g))
	residue := mod4g.Int64()

	switch g {
	case 2:
		return residue == 7
	case 3:
		return new(big.Int).Mod(p, big.NewInt(3)).Int64() == 2
	case 4:
		return true
	case 5:
		r := new(big.Int).Mod(p, big.NewInt(5)).Int64()
		return r == 1 || r == 4
	case 6:
		return residue == 19 || residue == 23
	case 7:
		r := new(big.Int).Mod(p, big.NewInt(7)).Int64()
		return r == 3 || r == 5 || r == 6
	}
	return false
}

// GAAcceptable checks a peer's public DH value g_a against spec §6:
// 1 < g_a < p-1, and both g_a and p-g_a are at least 2^(2048-64).
func GAAcceptable(gA, p *big.Int) bool {
	one := big.NewInt(1)
	pMinusOne := new(big.Int).Sub(p, one)
	if gA.Cmp(one) <= 0 || gA.Cmp(pMinusOne) >= 0 {
		return false
	}
	lowerBound := new(big.Int).Lsh(one, 2048-64)
	if gA.BitLen() < lowerBound.BitLen() {
		return false
	}
	diff := new(big.Int).Sub(p, gA)
	diff.Abs(diff)
	if diff.BitLen() < lowerBound.BitLen() {
		return false
	}
	return true
}

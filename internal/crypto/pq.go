package crypto

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

// Factorize splits a composite n < 2^63 into its two prime factors
// p < q using Pollard's rho with Brent's cycle detection, per spec
// §6 ("PQ factorization"): seed with a random multiplier c in
// [17,31] mod n, iterate x <- x^2+c mod n, look for a nontrivial
// gcd(|x-y|, n), and only then snapshot y <- x on every power-of-two
// step. Each of the 3 restarts runs up to an inner bound that starts
// at 2^18 iterations and doubles per restart.
func Factorize(n uint64) (p, q uint64, err error) {
	if n < 2 {
		return 0, 0, errors.Errorf("pq: %d is not composite", n)
	}
	if n%2 == 0 {
		return 2, n / 2, nil
	}

	nBig := new(big.Int).SetUint64(n)
	bound := uint64(1 << 18)

	for restart := 0; restart < 3; restart++ {
		c, err := randomInRange(17, 31)
		if err != nil {
			return 0, 0, err
		}
		x, err := randomInRange(0, n-1)
		if err != nil {
			return 0, 0, err
		}
		if x == 0 {
			x = 1
		}
		y := x

		cBig := new(big.Int).SetUint64(c)
		xBig := new(big.Int).SetUint64(x)
		yBig := new(big.Int).SetUint64(y)

		iterations := bound

		for i := uint64(1); i <= iterations; i++ {
			xBig.Mul(xBig, xBig)
			xBig.Add(xBig, cBig)
			xBig.Mod(xBig, nBig)

			diff := new(big.Int).Sub(xBig, yBig)
			diff.Abs(diff)
			if diff.Sign() == 0 {
				break
			}
			g := new(big.Int).GCD(nil, nil, diff, nBig)
			if g.Cmp(bigOne) > 0 && g.Cmp(nBig) < 0 {
				pVal := g.Uint64()
				qVal := n / pVal
				if pVal > qVal {
					pVal, qVal = qVal, pVal
				}
				return pVal, qVal, nil
			}

			if i&(i-1) == 0 {
				yBig.Set(xBig)
			}
		}
		bound *= 2
	}

	return 0, 0, errors.Errorf("pq: failed to factorize %d", n)
}

var bigOne = big.NewInt(1)

func randomInRange(lo, hi uint64) (uint64, error) {
	if hi < lo {
		return 0, errors.New("pq: invalid range")
	}
	span := hi - lo + 1
	max := new(big.Int).SetUint64(span)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, errors.Wrap(err, "pq: reading random")
	}
	return lo + v.Uint64(), nil
}

package crypto

import "testing"

func TestFactorizeSeedCase(t *testing.T) {
	const n uint64 = 0x17ED48941A08F981
	const wantP uint64 = 1229739323
	const wantQ uint64 = 1402015859

	p, q, err := Factorize(n)
	if err != nil {
		t.Fatalf("Factorize(%#x): %v", n, err)
	}
	if p != wantP || q != wantQ {
		t.Fatalf("Factorize(%#x) = (%d, %d), want (%d, %d)", n, p, q, wantP, wantQ)
	}
	if p*q != n {
		t.Fatalf("p*q = %d, want %d", p*q, n)
	}
}

func TestFactorizeEvenShortcut(t *testing.T) {
	p, q, err := Factorize(2 * 7)
	if err != nil {
		t.Fatalf("Factorize: %v", err)
	}
	if p != 2 || q != 7 {
		t.Fatalf("Factorize(14) = (%d, %d), want (2, 7)", p, q)
	}
}

func TestFactorizeRejectsNonComposite(t *testing.T) {
	if _, _, err := Factorize(1); err == nil {
		t.Fatalf("expected error factorizing 1")
	}
	if _, _, err := Factorize(0); err == nil {
		t.Fatalf("expected error factorizing 0")
	}
}

func TestFactorizeSeveralComposites(t *testing.T) {
	cases := []uint64{
		1000000007 * 1000000009,
		999999937 * 3,
		104729 * 104723,
	}
	for _, n := range cases {
		p, q, err := Factorize(n)
		if err != nil {
			t.Fatalf("Factorize(%d): %v", n, err)
		}
		if p*q != n {
			t.Fatalf("Factorize(%d) = (%d, %d), product %d != %d", n, p, q, p*q, n)
		}
		if p > q {
			t.Fatalf("Factorize(%d): expected p <= q, got p=%d q=%d", n, p, q)
		}
	}
}

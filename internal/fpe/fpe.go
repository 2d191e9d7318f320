// Package fpe implements the format-preserving cipher described in spec
// §4.4: a 10-round unbalanced Feistel network over an arbitrary small
// alphabet, keyed by a per-column sub-key and an HMAC-SHA256 PRF. It is
// modeled on the Feistel shape of the FF1-style reference implementation in
// the retrieval pack (vdparikh/fpe), generalized to big-integer block
// arithmetic so the round function's modular reduction matches the spec
// ("reduced modulo r^|R| ... using the big-endian integer encoding of the
// block in base r") for alphabets and block lengths of any practical size
// (credit-card digit strings, IBAN alphanumerics, UUID hex segments).
//
// This is explicitly not NIST FF1/FF3 certified (spec §1 Non-goals): it is
// "adequate for pseudonymization," not a certified construction.
package fpe

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"math/big"
)

const rounds = 10

// ErrExhausted is returned by CycleWalk when no legal candidate was found
// within the iteration budget.
var ErrExhausted = errors.New("fpe: exhausted cycle-walk budget")

// Cipher performs Feistel FPE over blocks of digit indices (0..radix-1)
// under a single column sub-key.
type Cipher struct {
	key []byte
}

// New returns a Cipher keyed on columnKey (typically keyschedule.Schedule.ColumnKey).
func New(columnKey []byte) *Cipher {
	return &Cipher{key: columnKey}
}

// Encrypt performs length-preserving FPE over digits (each in [0, radix)),
// under tweak. The empty block is returned unchanged (spec §4.4 edge case).
func (c *Cipher) Encrypt(tweak []byte, radix int, digits []int) []int {
	return c.feistel(tweak, radix, digits, true)
}

// Decrypt is the exact inverse of Encrypt for the same tweak and radix.
func (c *Cipher) Decrypt(tweak []byte, radix int, digits []int) []int {
	return c.feistel(tweak, radix, digits, false)
}

func (c *Cipher) feistel(tweak []byte, radix int, digits []int, forward bool) []int {
	n := len(digits)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return c.singleChar(tweak, radix, digits, forward)
	}

	u := (n + 1) / 2 // ceil(n/2); digits[u:] holds the remaining floor(n/2)

	if forward {
		A := cloneInts(digits[:u])
		B := cloneInts(digits[u:])
		for i := 0; i < rounds; i++ {
			a := len(A)
			f := c.round(tweak, i, B, radix, a)
			newB := addMod(A, f, radix, a)
			A, B = B, newB
		}
		return append(A, B...)
	}

	// Decrypt: ciphertext arrives split the same way plaintext was (u, v),
	// since an even number of rounds restores the original split lengths.
	A := cloneInts(digits[:u])
	B := cloneInts(digits[u:])
	for i := rounds - 1; i >= 0; i-- {
		// At round i (forward) we had A_prev (len a), B_prev (len b); the
		// round produced A_cur=B_prev (len b), B_cur=newB (len a). Here
		// (A,B) holds (A_cur,B_cur), so B_prev = A, and a = len(B).
		bPrev := A
		a := len(B)
		f := c.round(tweak, i, bPrev, radix, a)
		aPrevNum := subMod(numFromDigits(B, radix), f, radix, a)
		aPrev := digitsFromNum(aPrevNum, radix, a)
		A, B = aPrev, bPrev
	}
	return append(A, B...)
}

// singleChar handles the n==1 edge case (spec §4.4: "at least one round must
// swap"). The shift depends only on (key, tweak, radix), never on the digit
// value, so it is trivially its own inverse operation (add vs subtract).
func (c *Cipher) singleChar(tweak []byte, radix int, digits []int, forward bool) []int {
	if radix <= 1 {
		return cloneInts(digits)
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write(tweak)
	mac.Write([]byte{0xFF}) // single-character round marker, distinct from any round index
	sum := mac.Sum(nil)
	shiftBig := new(big.Int).SetBytes(sum)
	shiftBig.Mod(shiftBig, big.NewInt(int64(radix-1)))
	shift := int(shiftBig.Int64()) + 1 // in [1, radix-1], guarantees a swap

	x := digits[0]
	var y int
	if forward {
		y = (x + shift) % radix
	} else {
		y = ((x-shift)%radix + radix) % radix
	}
	return []int{y}
}

// round computes F(K, T, i, side), the PRF reduced modulo radix^outLen, as
// a digit array of length outLen.
func (c *Cipher) round(tweak []byte, i int, side []int, radix, outLen int) []int {
	mac := hmac.New(sha256.New, c.key)
	mac.Write(tweak)
	mac.Write([]byte{byte(i)})
	for _, d := range side {
		mac.Write([]byte{byte(d)})
	}
	sum := mac.Sum(nil)

	val := new(big.Int).SetBytes(sum)
	mod := modPow(radix, outLen)
	val.Mod(val, mod)
	return digitsFromNum(val, radix, outLen)
}

func addMod(a []int, f []int, radix, length int) []int {
	an := numFromDigits(a, radix)
	fn := numFromDigits(f, radix)
	an.Add(an, fn)
	an.Mod(an, modPow(radix, length))
	return digitsFromNum(an, radix, length)
}

func subMod(a *big.Int, f []int, radix, length int) *big.Int {
	fn := numFromDigits(f, radix)
	out := new(big.Int).Sub(a, fn)
	mod := modPow(radix, length)
	out.Mod(out, mod)
	if out.Sign() < 0 {
		out.Add(out, mod)
	}
	return out
}

func modPow(radix, length int) *big.Int {
	return new(big.Int).Exp(big.NewInt(int64(radix)), big.NewInt(int64(length)), nil)
}

func numFromDigits(digits []int, radix int) *big.Int {
	n := new(big.Int)
	r := big.NewInt(int64(radix))
	for _, d := range digits {
		n.Mul(n, r)
		n.Add(n, big.NewInt(int64(d)))
	}
	return n
}

func digitsFromNum(n *big.Int, radix, length int) []int {
	digits := make([]int, length)
	r := big.NewInt(int64(radix))
	tmp := new(big.Int).Set(n)
	mod := new(big.Int)
	for i := length - 1; i >= 0; i-- {
		tmp.DivMod(tmp, r, mod)
		digits[i] = int(mod.Int64())
	}
	return digits
}

func cloneInts(in []int) []int {
	out := make([]int, len(in))
	copy(out, in)
	return out
}

// CycleWalk retries encryptAt with increasing counters until legal reports
// true for the result, or maxIters is exhausted (spec §4.4: "cycle-walking:
// encrypt repeats ... until result lies in the legal set — used only for
// constrained domains"). encryptAt receives the retry counter so callers can
// fold it into the tweak (e.g. append a retry byte).
func CycleWalk(maxIters int, encryptAt func(counter int) []int, legal func([]int) bool) ([]int, error) {
	for counter := 0; counter < maxIters; counter++ {
		candidate := encryptAt(counter)
		if legal(candidate) {
			return candidate, nil
		}
	}
	return nil, ErrExhausted
}

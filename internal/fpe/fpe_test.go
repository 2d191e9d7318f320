package fpe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digitsOf(s string) []int {
	out := make([]int, len(s))
	for i, r := range s {
		out[i] = int(r - '0')
	}
	return out
}

func TestRoundTripDigits(t *testing.T) {
	key := []byte("column-key-0123456789abcdef")
	cipher := New(key)
	tweak := []byte("credit_card\x00")

	inputs := []string{"4539148803436467", "0000000000000", "12345", "9"}
	for _, in := range inputs {
		digits := digitsOf(in)
		enc := cipher.Encrypt(tweak, 10, digits)
		dec := cipher.Decrypt(tweak, 10, enc)
		assert.Equal(t, digits, dec, "round trip failed for %q", in)
		assert.Len(t, enc, len(digits))
	}
}

func TestEncryptIsLengthPreserving(t *testing.T) {
	cipher := New([]byte("k"))
	for n := 1; n <= 20; n++ {
		digits := make([]int, n)
		out := cipher.Encrypt([]byte("t"), 10, digits)
		assert.Len(t, out, n)
	}
}

func TestEmptyBlockIsIdentity(t *testing.T) {
	cipher := New([]byte("k"))
	assert.Nil(t, cipher.Encrypt([]byte("t"), 10, nil))
	assert.Nil(t, cipher.Decrypt([]byte("t"), 10, nil))
}

func TestSingleCharacterAlwaysSwaps(t *testing.T) {
	cipher := New([]byte("k"))
	tweak := []byte("phone\x00")
	for d := 0; d < 10; d++ {
		out := cipher.Encrypt(tweak, 10, []int{d})
		require.Len(t, out, 1)
		assert.NotEqual(t, d, out[0], "single-digit block must swap under a >1 radix")
		back := cipher.Decrypt(tweak, 10, out)
		assert.Equal(t, []int{d}, back)
	}
}

func TestDifferentColumnKeysDivergeWithHighProbability(t *testing.T) {
	tweak := []byte("col\x00")
	digits := digitsOf("4539148803436467")

	a := New([]byte("key-a")).Encrypt(tweak, 10, digits)
	b := New([]byte("key-b")).Encrypt(tweak, 10, digits)
	assert.NotEqual(t, a, b)
}

func TestDeterministic(t *testing.T) {
	cipher := New([]byte("stable-key"))
	tweak := []byte("uuid\x00")
	digits := []int{1, 2, 3, 4, 5, 6}

	first := cipher.Encrypt(tweak, 16, digits)
	second := cipher.Encrypt(tweak, 16, digits)
	assert.Equal(t, first, second)
}

func TestCycleWalkReturnsFirstLegalCandidate(t *testing.T) {
	attempts := 0
	result, err := CycleWalk(10, func(counter int) []int {
		attempts = counter
		return []int{counter}
	}, func(candidate []int) bool {
		return candidate[0] == 3
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, result)
	assert.Equal(t, 3, attempts)
}

func TestCycleWalkExhausted(t *testing.T) {
	_, err := CycleWalk(4, func(counter int) []int {
		return []int{counter}
	}, func(candidate []int) bool {
		return false
	})
	assert.ErrorIs(t, err, ErrExhausted)
}

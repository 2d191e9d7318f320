package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecomposeRecomposeRoundTrip(t *testing.T) {
	cases := []string{
		"John.Smith@gmail.com",
		"+61-421-555-829",
		"4539 1488 0343 6467",
		"DE89370400440532013000",
		"",
		"2020-02-29",
	}
	for _, s := range cases {
		shape, _, payload := Decompose(s)
		assert.Equal(t, s, Recompose(shape, payload), "round trip failed for %q", s)
	}
}

func TestSignatureEquality(t *testing.T) {
	assert.Equal(t, Signature("John.Smith@gmail.com"), Signature("Abcd.Efghi@yahoo.org"))
	assert.NotEqual(t, Signature("John.Smith@gmail.com"), Signature("John.Smith@gmail.co"))
}

func TestSignatureDistinguishesDigitsFromLetters(t *testing.T) {
	assert.NotEqual(t, Signature("abc123"), Signature("123abc"))
}

func TestPayloadLength(t *testing.T) {
	assert.Equal(t, 16, PayloadLength("4539 1488 0343 6467"))
	assert.Equal(t, 0, PayloadLength("---"))
}

func TestClassifyCase(t *testing.T) {
	assert.Equal(t, CaseUpper, ClassifyCase([]rune("JANE")))
	assert.Equal(t, CaseLower, ClassifyCase([]rune("jane")))
	assert.Equal(t, CaseTitle, ClassifyCase([]rune("Jane")))
}

func TestApplyCase(t *testing.T) {
	assert.Equal(t, "JANE", ApplyCase("jane", CaseUpper))
	assert.Equal(t, "jane", ApplyCase("JANE", CaseLower))
	assert.Equal(t, "Jane", ApplyCase("jane", CaseTitle))
}

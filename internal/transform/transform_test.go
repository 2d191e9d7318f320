package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stealthguard/anonycore/internal/detect"
	"github.com/stealthguard/anonycore/internal/keyschedule"
)

func baseRequest(typ detect.DataType, value string) Request {
	schedule, err := keyschedule.New([]byte("domain-key-0123456789"), 1)
	if err != nil {
		panic(err)
	}
	return Request{
		ColumnKey:  []byte("column-key-0123456789"),
		DomainHMAC: schedule.DomainHMAC,
		Column:     "col",
		Value:      value,
		Type:       typ,
	}
}

func TestTransformPhonePreservesShapeAndLeadingDigitNonZero(t *testing.T) {
	req := baseRequest(detect.Phone, "+1-555-123-4567")
	out, err := Apply(req)
	require.NoError(t, err)
	assert.Len(t, out, len(req.Value))
	assert.Equal(t, byte('+'), out[0])
	assert.NotEqual(t, byte('0'), out[1], "leading digit of a non-zero-led phone must stay non-zero")
}

func TestTransformEmailPreservesDomainTLD(t *testing.T) {
	req := baseRequest(detect.Email, "jane.doe@example.com")
	out, err := Apply(req)
	require.NoError(t, err)
	assert.Contains(t, out, "@")
	assert.Regexp(t, `\.com$`, out)
}

func TestTransformEmailSameDomainCoheresAcrossCalls(t *testing.T) {
	req1 := baseRequest(detect.Email, "jane@example.com")
	req2 := baseRequest(detect.Email, "john@example.com")
	out1, err := Apply(req1)
	require.NoError(t, err)
	out2, err := Apply(req2)
	require.NoError(t, err)

	domain1 := out1[strings_Index(out1, "@")+1:]
	domain2 := out2[strings_Index(out2, "@")+1:]
	assert.Equal(t, domain1, domain2)
}

func strings_Index(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestTransformUUIDPreservesShapeAndCase(t *testing.T) {
	req := baseRequest(detect.UUID, "550E8400-E29B-41D4-A716-446655440000")
	out, err := Apply(req)
	require.NoError(t, err)
	assert.Len(t, out, len(req.Value))
	assert.Equal(t, out, stringsToUpper(out), "case of hex digits must be preserved")
}

func stringsToUpper(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'a' && r <= 'z' {
			out[i] = r - ('a' - 'A')
		}
	}
	return string(out)
}

func TestTransformDateStaysWithinWindowAndTemplate(t *testing.T) {
	req := baseRequest(detect.Date, "2020-06-15")
	req.Params.DateTemplate = "2006-01-02"
	out, err := Apply(req)
	require.NoError(t, err)
	assert.Len(t, out, len("2020-06-15"))

	parsed, err := time.Parse(req.Params.DateTemplate, out)
	require.NoError(t, err)
	shiftDays := parsed.Sub(time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)).Hours() / 24
	window := float64(2*dayBoundYears*365 + 1)
	assert.Less(t, shiftDays, window)
	assert.Greater(t, shiftDays, -window)
}

func TestTransformNumericIDPreservesLength(t *testing.T) {
	req := baseRequest(detect.NumericID, "0293847561")
	out, err := Apply(req)
	require.NoError(t, err)
	assert.Len(t, out, len(req.Value))
}

func TestTransformCreditCardProducesLuhnValid(t *testing.T) {
	req := baseRequest(detect.CreditCard, "4539148803436467")
	out, err := Apply(req)
	require.NoError(t, err)
	assert.Len(t, out, len(req.Value))
	assert.True(t, detect.LuhnValid(out))
}

func TestTransformCreditCardTooShortIsUnparseable(t *testing.T) {
	req := baseRequest(detect.CreditCard, "4")
	_, err := Apply(req)
	require.Error(t, err)
	var fu *FormatUnparseableError
	require.ErrorAs(t, err, &fu)
}

func TestTransformIBANProducesValidChecksum(t *testing.T) {
	req := baseRequest(detect.IBAN, "DE89370400440532013000")
	out, err := Apply(req)
	require.NoError(t, err)
	assert.Len(t, out, len(req.Value))
	assert.True(t, detect.IBANChecksumValid(out))
	assert.Equal(t, "DE", out[:2])
}

func TestTransformNamePreservesTokenCountAndCase(t *testing.T) {
	req := baseRequest(detect.Name, "Jane Smith")
	out, err := Apply(req)
	require.NoError(t, err)
	tokens := splitFields(out)
	require.Len(t, tokens, 2)
	for _, tok := range tokens {
		assert.True(t, tok[0] >= 'A' && tok[0] <= 'Z', "expected title case token, got %q", tok)
	}
}

func splitFields(s string) []string {
	var out []string
	var cur []rune
	for _, r := range s {
		if r == ' ' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func TestTransformAddressPreservesFieldCount(t *testing.T) {
	req := baseRequest(detect.Address, "123 Main St, Springfield, 12345")
	out, err := Apply(req)
	require.NoError(t, err)
	assert.Len(t, splitAddressFields(out), 3)
}

func splitAddressFields(s string) []string {
	var out []string
	cur := ""
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(s[i])
	}
	out = append(out, cur)
	return out
}

func TestTransformIsDeterministicForSameInput(t *testing.T) {
	req := baseRequest(detect.Phone, "+1-555-123-4567")
	a, err := Apply(req)
	require.NoError(t, err)
	b, err := Apply(req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestApplyGenericFakePreservesShape(t *testing.T) {
	key := []byte("k")
	out := ApplyGenericFake(key, "Jane-Doe123")
	assert.Len(t, out, len("Jane-Doe123"))
	assert.Equal(t, byte('-'), out[4])
}

func TestApplyGenericFPEIsDeterministicAndShapePreserving(t *testing.T) {
	key := []byte("k")
	tw := []byte("col")
	a := ApplyGenericFPE(key, tw, "AB-1234")
	b := ApplyGenericFPE(key, tw, "AB-1234")
	assert.Equal(t, a, b)
	assert.Len(t, a, len("AB-1234"))
	assert.Equal(t, byte('-'), a[2])
}

func TestApplyHMACFormatPreservingIsDeterministicAndNotReversible(t *testing.T) {
	key := []byte("k")
	a := ApplyHMACFormatPreserving(key, "jane@example.com")
	b := ApplyHMACFormatPreserving(key, "jane@example.com")
	assert.Equal(t, a, b)
	assert.Len(t, a, len("jane@example.com"))
	assert.Equal(t, byte('@'), a[4])
}

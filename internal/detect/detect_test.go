package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectUUID(t *testing.T) {
	sample := []string{
		"550e8400-e29b-41d4-a716-446655440000",
		"6fa459ea-ee8a-3ca4-894e-db77e160355e",
	}
	r := Detect("id", sample)
	assert.Equal(t, UUID, r.Type)
}

func TestDetectEmail(t *testing.T) {
	sample := []string{"jane@example.com", "john.doe@work.org", "a@b.co"}
	r := Detect("contact", sample)
	assert.Equal(t, Email, r.Type)
}

func TestDetectPhone(t *testing.T) {
	sample := []string{"+1-555-123-4567", "+1-555-987-6543", "+44-20-7946-0958"}
	r := Detect("phone_number", sample)
	assert.Equal(t, Phone, r.Type)
}

func TestDetectCreditCard(t *testing.T) {
	sample := []string{"4539 1488 0343 6467", "4916 3385 0608 2832"}
	r := Detect("card", sample)
	assert.Equal(t, CreditCard, r.Type)
}

func TestDetectIBAN(t *testing.T) {
	sample := []string{"DE89370400440532013000", "GB29NWBK60161331926819"}
	r := Detect("iban", sample)
	assert.Equal(t, IBAN, r.Type)
}

func TestDetectDate(t *testing.T) {
	sample := []string{"2020-01-15", "1999-12-31", "2024-06-01"}
	r := Detect("signup_date", sample)
	assert.Equal(t, Date, r.Type)
	assert.Equal(t, "2006-01-02", r.Params.DateTemplate)
}

func TestDetectNumericID(t *testing.T) {
	sample := []string{"102938", "583910", "992817"}
	r := Detect("record_id", sample)
	assert.Equal(t, NumericID, r.Type)
}

func TestDetectDomain(t *testing.T) {
	sample := []string{"example.com", "sub.example.org", "my-site.co"}
	r := Detect("website", sample)
	assert.Equal(t, Domain, r.Type)
}

func TestDetectNameWithColumnHint(t *testing.T) {
	sample := []string{"Jane Smith", "John O'Brien", "Maria Garcia-Lopez"}
	r := Detect("customer_name", sample)
	assert.Equal(t, Name, r.Type)
}

func TestDetectAddress(t *testing.T) {
	sample := []string{
		"123 Main St", "456 Oak Avenue", "789 Elm Road", "12 Birch Ln",
	}
	r := Detect("mailing_address", sample)
	assert.Equal(t, Address, r.Type)
}

func TestDetectFreeTextFallback(t *testing.T) {
	sample := []string{
		"the quick brown fox jumps over the lazy dog and keeps running",
		"a long narrative paragraph describing something unrelated entirely",
	}
	r := Detect("notes", sample)
	assert.Equal(t, FreeText, r.Type)
}

func TestDetectEmptySampleIsFreeTextWithZeroConfidence(t *testing.T) {
	r := Detect("anything", nil)
	assert.Equal(t, FreeText, r.Type)
	assert.Equal(t, 0.0, r.Confidence)
}

func TestLuhnValid(t *testing.T) {
	assert.True(t, LuhnValid("4539148803436467"))
	assert.False(t, LuhnValid("4539148803436468"))
}

func TestIBANChecksumValid(t *testing.T) {
	assert.True(t, IBANChecksumValid("DE89370400440532013000"))
	assert.False(t, IBANChecksumValid("DE89370400440532013001"))
}

// Package transform implements the per-type format-preserving
// transformers (spec §4.7): given a value already classified by the
// detector, each produces a shape-equivalent synthetic replacement using
// the fpe, fakedata, format and keyschedule packages.
//
// Every transformer is a pure function of (column key, value, params,
// retry counter) — no transformer touches the vault. The collision-retry
// loop that perturbs the retry counter on a vault collision, and the
// vault writes themselves, live one level up in engine, which is the
// only place that needs both a transformer and vault state at once.
package transform

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/stealthguard/anonycore/internal/detect"
	"github.com/stealthguard/anonycore/internal/fakedata"
	"github.com/stealthguard/anonycore/internal/format"
	"github.com/stealthguard/anonycore/internal/fpe"
)

// Request bundles everything one transformer invocation needs.
type Request struct {
	ColumnKey []byte
	// DomainHMAC derives HMAC(master_key, "domain:"||domain) for a given
	// domain substring (spec §3 domain map), independent of column, so
	// every email sharing a domain draws from the same fake-domain slot.
	DomainHMAC      func(domain string) []byte
	Column          string
	Value           string
	Type            detect.DataType
	Params          detect.Params
	PreserveDomains bool
	RetryCounter    int
}

// Apply dispatches to the transformer matching req.Type.
func Apply(req Request) (string, error) {
	switch req.Type {
	case detect.Email:
		return transformEmail(req)
	case detect.Phone:
		return transformPhone(req)
	case detect.Name:
		return transformName(req)
	case detect.UUID:
		return transformUUID(req)
	case detect.Date:
		return transformDate(req)
	case detect.NumericID:
		return transformNumericID(req)
	case detect.CreditCard:
		return transformCreditCard(req)
	case detect.IBAN:
		return transformIBAN(req)
	case detect.Address:
		return transformAddress(req)
	case detect.Domain:
		return transformDomain(req)
	case detect.FreeText:
		return transformFreeText(req)
	default:
		return "", fmt.Errorf("transform: unknown data type %q", req.Type)
	}
}

func tweak(column string, retryCounter int, direction byte) []byte {
	t := append([]byte(column), direction)
	if retryCounter > 0 {
		t = append(t, byte(retryCounter))
	}
	return t
}

func digitAlphabetIndices(digits string) []int {
	out := make([]int, len(digits))
	for i, r := range digits {
		out[i] = int(r - '0')
	}
	return out
}

func digitsFromIndices(idx []int) string {
	var b strings.Builder
	for _, d := range idx {
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

const hexAlphabet = "0123456789abcdef"

func hexIndices(s string) []int {
	out := make([]int, len(s))
	for i, r := range strings.ToLower(s) {
		out[i] = strings.IndexRune(hexAlphabet, r)
	}
	return out
}

func indicesToHex(idx []int, upper bool) string {
	var b strings.Builder
	for _, d := range idx {
		c := hexAlphabet[d]
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// fpeDigits runs column-keyed FPE on a decimal digit string, returning
// the result as a same-length digit string.
func fpeDigits(req Request, direction byte, digits string) string {
	if digits == "" {
		return digits
	}
	c := fpe.New(req.ColumnKey)
	out := c.Encrypt(tweak(req.Column, req.RetryCounter, direction), 10, digitAlphabetIndices(digits))
	return digitsFromIndices(out)
}

func transformEmail(req Request) (string, error) {
	parts := strings.SplitN(req.Value, "@", 2)
	if len(parts) != 2 {
		return "", &FormatUnparseableError{Column: req.Column, Reason: "email missing @"}
	}
	local, domain := parts[0], parts[1]

	localOut := transformDotUnderscoreTokens(req, local, 0xE0)

	var domainOut string
	if req.PreserveDomains {
		domainOut = anonymizedDomain(req, domain)
	} else {
		domainOut = fakeDomainPreservingTLD(req, domain)
	}

	return localOut + "@" + domainOut, nil
}

func transformDotUnderscoreTokens(req Request, s string, marker byte) string {
	var out strings.Builder
	var tok strings.Builder
	flush := func() {
		if tok.Len() == 0 {
			return
		}
		style := format.ClassifyCase([]rune(tok.String()))
		draw := fakedata.Draw(fakedata.FirstNames, req.ColumnKey, fmt.Sprintf("email-local-%d", marker), tok.String())
		out.WriteString(format.ApplyCase(draw, style))
		tok.Reset()
	}
	for _, r := range s {
		if r == '.' || r == '_' {
			flush()
			out.WriteRune(r)
			continue
		}
		tok.WriteRune(r)
	}
	flush()
	return out.String()
}

func fakeDomainPreservingTLD(req Request, domain string) string {
	tld := domainTLD(domain)
	key := req.DomainHMAC(domain)
	base := fakedata.Draw(fakedata.DomainBases, key, "domain-base", domain)
	return base + "." + tld
}

func anonymizedDomain(req Request, domain string) string {
	lower := strings.ToLower(domain)
	tld := domainTLD(domain)
	key := req.DomainHMAC(lower)
	base := fakedata.Draw(fakedata.DomainBases, key, "domain-cohesion", lower)
	return base + "." + tld
}

func domainTLD(domain string) string {
	idx := strings.LastIndexByte(domain, '.')
	if idx < 0 {
		return "example"
	}
	candidate := strings.ToLower(domain[idx+1:])
	for _, tld := range fakedata.TLDs {
		if tld == candidate {
			return candidate
		}
	}
	return candidate // unrecognized but format-valid TLD is still preserved literally
}

func transformDomain(req Request) (string, error) {
	return anonymizedDomain(req, req.Value), nil
}

func transformPhone(req Request) (string, error) {
	shape, _, _ := format.Decompose(req.Value)
	digits := onlyDigits(req.Value)
	if digits == "" {
		return req.Value, nil
	}
	originalFirstNonZero := digits[0] != '0'

	out := fpeDigits(req, 0x01, digits)
	if originalFirstNonZero && out[0] == '0' {
		for counter := 1; counter <= 8 && out[0] == '0'; counter++ {
			c := fpe.New(req.ColumnKey)
			idx := c.Encrypt(tweak(req.Column, req.RetryCounter+counter, 0x01), 10, digitAlphabetIndices(digits))
			out = digitsFromIndices(idx)
		}
	}
	return format.Recompose(shape, []rune(out)), nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func transformName(req Request) (string, error) {
	tokens := strings.Fields(req.Value)
	outTokens := make([]string, len(tokens))
	for i, tok := range tokens {
		corpus := fakedata.LastNames
		corpusName := "name-last"
		switch {
		case i == 0:
			corpus, corpusName = fakedata.FirstNames, "name-first"
		case i == len(tokens)-1:
			corpus, corpusName = fakedata.LastNames, "name-last"
		default:
			corpus, corpusName = fakedata.FirstNames, "name-middle"
		}
		outTokens[i] = transformHyphenatedToken(req, tok, corpus, corpusName)
	}
	return strings.Join(outTokens, " "), nil
}

func transformHyphenatedToken(req Request, tok string, corpus fakedata.Corpus, corpusName string) string {
	parts := strings.Split(tok, "-")
	for i, p := range parts {
		style := format.ClassifyCase([]rune(p))
		draw := fakedata.Draw(corpus, req.ColumnKey, corpusName, p)
		parts[i] = format.ApplyCase(draw, style)
	}
	return strings.Join(parts, "-")
}

func transformUUID(req Request) (string, error) {
	segments := strings.Split(req.Value, "-")
	c := fpe.New(req.ColumnKey)
	valueUpper := req.Value != strings.ToLower(req.Value)
	for i, seg := range segments {
		upper := seg != strings.ToLower(seg)
		if seg == strings.ToUpper(seg) && !upper {
			upper = valueUpper // digit-only segment: follow the case of the whole value
		}
		idx := hexIndices(seg)
		out := c.Encrypt(tweak(req.Column+fmt.Sprintf("-seg%d", i), req.RetryCounter, 0x02), 16, idx)
		segments[i] = indicesToHex(out, upper)
	}
	return strings.Join(segments, "-"), nil
}

const dayBoundYears = 20

func transformDate(req Request) (string, error) {
	tpl := req.Params.DateTemplate
	if tpl == "" {
		tpl = "2006-01-02"
	}
	t, err := time.Parse(tpl, req.Value)
	if err != nil {
		return "", &FormatUnparseableError{Column: req.Column, Reason: "date does not match template " + tpl}
	}

	epoch := time.Unix(0, 0).UTC()
	daysSinceEpoch := int(t.UTC().Sub(epoch).Hours() / 24)

	bound := dayBoundYears * 365
	window := 2*bound + 1
	offset := ((daysSinceEpoch % window) + window) % window
	bucket := daysSinceEpoch - offset

	width := len(strconv.Itoa(window))
	digitStr := fmt.Sprintf("%0*d", width, offset)

	c := fpe.New(req.ColumnKey)
	newIdx := c.Encrypt(tweak(req.Column+":"+tpl, req.RetryCounter, 0x03), 10, digitAlphabetIndices(digitStr))
	newOffsetVal, err := strconv.Atoi(digitsFromIndices(newIdx))
	if err != nil {
		return "", &FormatUnparseableError{Column: req.Column, Reason: "date offset decode failure"}
	}
	newOffsetVal = newOffsetVal % window

	newDays := bucket + newOffsetVal
	newDate := epoch.AddDate(0, 0, newDays)

	if newDate.Month() == time.February && newDate.Day() == 29 && !isLeapYear(newDate.Year()) {
		newDate = newDate.AddDate(0, 0, 1)
	}

	return newDate.Format(tpl), nil
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func transformNumericID(req Request) (string, error) {
	shape, _, _ := format.Decompose(req.Value)
	digits := onlyDigits(req.Value)
	out := fpeDigits(req, 0x04, digits)
	return format.Recompose(shape, []rune(out)), nil
}

func transformCreditCard(req Request) (string, error) {
	shape, _, _ := format.Decompose(req.Value)
	digits := onlyDigits(req.Value)
	if len(digits) < 2 {
		return "", &FormatUnparseableError{Column: req.Column, Reason: "credit card too short"}
	}
	body, _ := digits[:len(digits)-1], digits[len(digits)-1:]

	newBody := fpeDigits(req, 0x05, body)
	checkDigit := luhnCheckDigit(newBody)
	out := newBody + string(checkDigit)
	return format.Recompose(shape, []rune(out)), nil
}

func luhnCheckDigit(body string) byte {
	sum := 0
	parity := len(body) % 2
	for i, r := range body {
		d := int(r - '0')
		if i%2 != parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return byte('0' + check)
}

func transformIBAN(req Request) (string, error) {
	clean := strings.ToUpper(strings.ReplaceAll(req.Value, " ", ""))
	if len(clean) < 4 {
		return "", &FormatUnparseableError{Column: req.Column, Reason: "iban too short"}
	}
	country := clean[:2]
	bban := clean[4:]

	alphaIdx := alphanumericIndices(bban)
	c := fpe.New(req.ColumnKey)
	out := c.Encrypt(tweak(req.Column, req.RetryCounter, 0x06), 36, alphaIdx)
	newBBAN := indicesToAlphanumeric(out)

	check := computeIBANCheckDigits(country, newBBAN)
	result := country + check + newBBAN

	if req.Value != clean {
		return reinsertSpaces(req.Value, result), nil
	}
	return result, nil
}

const alnumAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func alphanumericIndices(s string) []int {
	out := make([]int, len(s))
	for i, r := range s {
		out[i] = strings.IndexRune(alnumAlphabet, r)
	}
	return out
}

func indicesToAlphanumeric(idx []int) string {
	var b strings.Builder
	for _, d := range idx {
		if d < 0 || d >= len(alnumAlphabet) {
			d = 0
		}
		b.WriteByte(alnumAlphabet[d])
	}
	return b.String()
}

// computeIBANCheckDigits implements ISO 7064 mod-97-10 check-digit
// computation (spec §4.7 IBAN: "recompute the ISO 7064 checksum").
func computeIBANCheckDigits(country, bban string) string {
	rearranged := bban + country + "00"
	var numeric strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			numeric.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			numeric.WriteString(strconv.Itoa(int(r-'A') + 10))
		}
	}
	remainder := 0
	for _, r := range numeric.String() {
		remainder = (remainder*10 + int(r-'0')) % 97
	}
	check := 98 - remainder
	return fmt.Sprintf("%02d", check)
}

func reinsertSpaces(original, compact string) string {
	var b strings.Builder
	i := 0
	for _, r := range original {
		if r == ' ' {
			b.WriteRune(' ')
			continue
		}
		if i < len(compact) {
			b.WriteByte(compact[i])
			i++
		}
	}
	return b.String()
}

func transformAddress(req Request) (string, error) {
	fields := strings.Split(req.Value, ",")
	for i, field := range fields {
		fields[i] = transformAddressField(req, strings.TrimSpace(field), i)
	}
	return strings.Join(fields, ", "), nil
}

func transformAddressField(req Request, field string, index int) string {
	tokens := strings.Fields(field)
	if len(tokens) == 0 {
		return field
	}

	if index == 0 && reDigitsAny(tokens[0]) {
		number := fpeDigits(req, 0x07, onlyDigits(tokens[0]))
		streetTypeIdx := -1
		for i, tok := range tokens[1:] {
			if isKnownStreetType(tok) {
				streetTypeIdx = i + 1
			}
		}
		streetName := fakedata.Draw(fakedata.Cities, req.ColumnKey, "address-street", field)
		out := []string{number, streetName}
		if streetTypeIdx >= 0 {
			out = append(out, tokens[streetTypeIdx:]...)
		}
		return strings.Join(out, " ")
	}

	if looksLikePostcode(field) {
		digits := onlyDigits(field)
		return fpeDigits(req, 0x08, digits)
	}

	return fakedata.Draw(fakedata.Cities, req.ColumnKey, "address-city", field)
}

func reDigitsAny(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func isKnownStreetType(tok string) bool {
	cleaned := strings.Trim(strings.ToLower(tok), ".,")
	for _, st := range fakedata.StreetTypes {
		if strings.ToLower(st) == cleaned {
			return true
		}
	}
	return false
}

func looksLikePostcode(field string) bool {
	digits := onlyDigits(field)
	return len(digits) >= 3 && len(digits) == len(strings.TrimSpace(field))
}

func transformFreeText(req Request) (string, error) {
	tokens := strings.Fields(req.Value)
	for i, tok := range tokens {
		if len(tok) == 0 {
			continue
		}
		r := []rune(tok)
		if r[0] >= 'A' && r[0] <= 'Z' {
			style := format.ClassifyCase(r)
			draw := fakedata.Draw(fakedata.FirstNames, req.ColumnKey, "freetext-proper", tok)
			tokens[i] = format.ApplyCase(draw, style)
			continue
		}
		minLen, maxLen := fakedata.LengthBucket(len(tok))
		tokens[i] = fakedata.DrawToken(req.ColumnKey, "freetext-common", tok, minLen, maxLen)
	}
	return strings.Join(tokens, " "), nil
}

// ApplyGenericFake implements mode "fake" (spec §6 set_mode): every
// type, not just the textual ones, is rendered via per-position
// deterministic corpus-style substitution rather than its dedicated
// algorithm. Reversibility for this mode comes entirely from the vault
// recording (column, original, candidate) — engine never needs to invert
// this function algorithmically.
func ApplyGenericFake(columnKey []byte, value string) string {
	shape, _, payload := format.Decompose(value)
	out := make([]rune, len(payload))
	for i, r := range payload {
		idx := genericHashIndex(columnKey, "fake", i, value, 26)
		switch format.ClassOf(r) {
		case format.ClassDigit:
			out[i] = rune('0' + idx%10)
		case format.ClassUpper:
			out[i] = rune('A' + idx)
		default:
			out[i] = rune('a' + idx)
		}
	}
	return format.Recompose(shape, out)
}

// ApplyGenericFPE implements mode "fpe": every type runs through the
// Feistel cipher segment-by-segment instead of its dedicated per-type
// construction (e.g. email local parts are FPE'd character-class by
// character-class rather than token-by-token).
func ApplyGenericFPE(columnKey []byte, tweak []byte, value string) string {
	shape, segments, payload := format.Decompose(value)
	out := make([]rune, len(payload))
	cipher := fpe.New(columnKey)
	pos := 0
	for segIdx, seg := range segments {
		chunk := payload[pos : pos+seg.Length]
		segTweak := append(append([]byte{}, tweak...), byte(segIdx))
		switch seg.Class {
		case format.ClassDigit:
			idx := make([]int, len(chunk))
			for i, r := range chunk {
				idx[i] = int(r - '0')
			}
			enc := cipher.Encrypt(segTweak, 10, idx)
			for i, d := range enc {
				out[pos+i] = rune('0' + d)
			}
		default: // ClassUpper or ClassLower
			idx := make([]int, len(chunk))
			for i, r := range chunk {
				idx[i] = int(unicode.ToLower(r) - 'a')
			}
			enc := cipher.Encrypt(segTweak, 26, idx)
			for i, d := range enc {
				c := rune('a' + d)
				if seg.Class == format.ClassUpper {
					c = unicode.ToUpper(c)
				}
				out[pos+i] = c
			}
		}
		pos += seg.Length
	}
	return format.Recompose(shape, out)
}

// ApplyHMACFormatPreserving implements mode "hmac" (spec §6): a single
// non-reversible, unstored derivation. It never touches the vault and is
// not meant to be inverted — deanonymize in this mode always misses.
func ApplyHMACFormatPreserving(columnKey []byte, value string) string {
	shape, _, payload := format.Decompose(value)
	stream := hmacStream(columnKey, value, len(payload))
	out := make([]rune, len(payload))
	for i, r := range payload {
		b := stream[i]
		switch format.ClassOf(r) {
		case format.ClassDigit:
			out[i] = rune('0' + int(b)%10)
		case format.ClassUpper:
			out[i] = rune('A' + int(b)%26)
		default:
			out[i] = rune('a' + int(b)%26)
		}
	}
	return format.Recompose(shape, out)
}

// hmacStream expands HMAC-SHA256(key, value) into at least n bytes by
// chaining with a counter, since payloads routinely exceed 32 bytes.
func hmacStream(key []byte, value string, n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	for counter := 0; len(out) < n; counter++ {
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(value))
		mac.Write([]byte{byte(counter)})
		out = append(out, mac.Sum(nil)...)
	}
	return out[:n]
}

func genericHashIndex(key []byte, tag string, position int, value string, mod int) int {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(tag))
	mac.Write([]byte{byte(position)})
	mac.Write([]byte(value))
	sum := mac.Sum(nil)
	n := uint64(0)
	for _, b := range sum[:8] {
		n = n<<8 | uint64(b)
	}
	return int(n % uint64(mod))
}

// FormatUnparseableError is raised when the email, date, credit-card or
// IBAN transformer cannot parse its input for the detected type (spec
// §7 FormatUnparseable: "local fallback to free-text behavior; warning
// emitted").
type FormatUnparseableError struct {
	Column string
	Reason string
}

func (e *FormatUnparseableError) Error() string {
	return fmt.Sprintf("transform: column %q: %s", e.Column, e.Reason)
}

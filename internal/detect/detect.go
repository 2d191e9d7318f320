// Package detect implements the type detector (spec §4.6): given a
// sampled set of non-null cells from one column, it decides the column's
// semantic data type with a confidence score, via a priority-ordered
// regex prefilter followed by name/address heuristics and a free-text
// fallback.
//
// The regex-rule-table idiom (an ordered list of {pattern, type,
// validator} tried in sequence until one clears a sample-fraction
// threshold) is grounded on the pattern table in the retrieval pack's
// anonymizing-proxy detector.
package detect

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DataType is the closed set of semantic types the detector can assign
// (spec §9: "closed tagged-variant enumeration").
type DataType string

const (
	Email      DataType = "email"
	Phone      DataType = "phone"
	Name       DataType = "name"
	UUID       DataType = "uuid"
	Date       DataType = "date"
	NumericID  DataType = "numeric_id"
	CreditCard DataType = "credit_card"
	IBAN       DataType = "iban"
	Address    DataType = "address"
	Domain     DataType = "domain"
	FreeText   DataType = "free_text"
)

// dateTemplates enumerates the fixed set of parseable layouts (spec
// §4.6). Index order is also tie-break order for the plurality vote.
var dateTemplates = []string{
	"2006-01-02", "2006/01/02", "2006.01.02",
	"02-01-2006", "02/01/2006", "02.01.2006",
	"01-02-2006", "01/02/2006", "01.02.2006",
}

// Params carries the per-type ancillary detail the coordinator's
// transformers need (spec §4.6: "params carry format template for
// dates, separator and country code for phones, etc.").
type Params struct {
	DateTemplate  string
	PhoneCountry  string
	PhoneSepStyle string
}

// Result is the detector's verdict for one column.
type Result struct {
	Type       DataType
	Confidence float64
	Params     Params
}

var (
	reUUID       = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	reEmail      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	reDigitsOnly = regexp.MustCompile(`^[0-9]+$`)
	reIBANShape  = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z0-9]{10,30}$`)
	reDomain     = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	reNonDigit   = regexp.MustCompile(`[^0-9]`)
	reHasLetter  = regexp.MustCompile(`[A-Za-z]`)

	stoplist = map[string]bool{
		"the": true, "and": true, "of": true, "for": true, "with": true,
		"a": true, "an": true, "to": true, "in": true, "on": true,
		"is": true, "at": true, "by": true, "or": true, "not": true,
	}

	streetTokens = map[string]bool{
		"st": true, "street": true, "ave": true, "avenue": true,
		"rd": true, "road": true, "blvd": true, "boulevard": true,
		"ln": true, "lane": true, "dr": true, "drive": true,
		"ct": true, "court": true, "pl": true, "place": true,
		"way": true, "terrace": true, "ter": true, "cir": true,
		"circle": true, "pkwy": true, "parkway": true,
	}

	nameColumnHint = regexp.MustCompile(`(?i)name|user|customer|employee|person`)
)

const sampleThreshold = 0.8

// Detect classifies sample against columnName per the pipeline in spec
// §4.6. sample must already be filtered to non-null cells; it is the
// caller's responsibility to cap it at 1000 entries before calling in
// (spec §4.6 input contract).
func Detect(columnName string, sample []string) Result {
	if len(sample) == 0 {
		return Result{Type: FreeText, Confidence: 0}
	}

	if r, ok := tryRegexPrefilter(sample); ok {
		return r
	}
	if r, ok := tryNameHeuristic(columnName, sample); ok {
		return r
	}
	if r, ok := tryAddressHeuristic(sample); ok {
		return r
	}
	return Result{Type: FreeText, Confidence: 1 - bestRegexScore(sample)}
}

func tryRegexPrefilter(sample []string) (Result, bool) {
	if frac := matchFraction(sample, isUUID); frac >= sampleThreshold {
		return Result{Type: UUID, Confidence: frac}, true
	}
	if frac := matchFraction(sample, isEmail); frac >= sampleThreshold {
		return Result{Type: Email, Confidence: frac}, true
	}
	if frac := matchFraction(sample, isPhone); frac >= sampleThreshold {
		return Result{Type: Phone, Confidence: frac, Params: Params{PhoneSepStyle: dominantPhoneSeparator(sample)}}, true
	}
	if frac := matchFraction(sample, isLuhnCandidate); frac >= sampleThreshold {
		return Result{Type: CreditCard, Confidence: frac}, true
	}
	if frac := matchFraction(sample, isIBAN); frac >= sampleThreshold {
		return Result{Type: IBAN, Confidence: frac}, true
	}
	if template, frac, ok := winningDateTemplate(sample); ok && frac >= sampleThreshold {
		return Result{Type: Date, Confidence: frac, Params: Params{DateTemplate: template}}, true
	}
	if frac := matchFraction(sample, isNumericID); frac >= sampleThreshold {
		return Result{Type: NumericID, Confidence: frac}, true
	}
	if frac := matchFraction(sample, func(s string) bool { return reDomain.MatchString(strings.ToLower(s)) }); frac >= sampleThreshold {
		return Result{Type: Domain, Confidence: frac}, true
	}
	return Result{}, false
}

func bestRegexScore(sample []string) float64 {
	best := 0.0
	checks := []func(string) bool{
		isUUID,
		isEmail, isPhone, isLuhnCandidate, isIBAN, isNumericID,
	}
	for _, check := range checks {
		if f := matchFraction(sample, check); f > best {
			best = f
		}
	}
	return best
}

func matchFraction(sample []string, pred func(string) bool) float64 {
	hits := 0
	for _, s := range sample {
		if pred(s) {
			hits++
		}
	}
	return float64(hits) / float64(len(sample))
}

// isUUID checks the canonical 8-4-4-4-12 dashed shape first (cheap,
// rejects the overwhelming majority of non-UUID samples without an
// allocation) and only then confirms it with uuid.Parse, which also
// accepts the brace/urn encodings we don't want to call real matches.
func isUUID(s string) bool {
	if !reUUID.MatchString(s) {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func isEmail(s string) bool {
	if !reEmail.MatchString(s) {
		return false
	}
	parts := strings.SplitN(s, "@", 2)
	return len(parts) == 2 && parts[0] != "" && strings.Contains(parts[1], ".")
}

func isPhone(s string) bool {
	if reHasLetter.MatchString(s) {
		return false
	}
	// Values that parse as one of the date templates are left to the date rule.
	for _, tpl := range dateTemplates {
		if _, err := time.Parse(tpl, s); err == nil {
			return false
		}
	}
	trimmed := strings.TrimPrefix(s, "+")
	digits := reNonDigit.ReplaceAllString(trimmed, "")
	return len(digits) >= 7 && len(digits) <= 15
}

func dominantPhoneSeparator(sample []string) string {
	counts := map[string]int{"-": 0, " ": 0, ".": 0, "": 0}
	for _, s := range sample {
		switch {
		case strings.Contains(s, "-"):
			counts["-"]++
		case strings.Contains(s, " "):
			counts[" "]++
		case strings.Contains(s, "."):
			counts["."]++
		default:
			counts[""]++
		}
	}
	best, bestCount := "", -1
	for sep, c := range counts {
		if c > bestCount {
			best, bestCount = sep, c
		}
	}
	return best
}

func isLuhnCandidate(s string) bool {
	digits := reNonDigit.ReplaceAllString(s, "")
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return LuhnValid(digits)
}

// LuhnValid reports whether digits (decimal string) passes the Luhn
// checksum (spec §8 property 8, §4.6 credit_card rule).
func LuhnValid(digits string) bool {
	sum := 0
	parity := len(digits) % 2
	for i, r := range digits {
		d, err := strconv.Atoi(string(r))
		if err != nil {
			return false
		}
		if i%2 == parity {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func isIBAN(s string) bool {
	clean := strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if !reIBANShape.MatchString(clean) {
		return false
	}
	return IBANChecksumValid(clean)
}

// IBANChecksumValid implements ISO 7064 mod-97-10 validation (spec §8
// property 9).
func IBANChecksumValid(iban string) bool {
	if len(iban) < 4 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var numeric strings.Builder
	for _, r := range rearranged {
		switch {
		case r >= '0' && r <= '9':
			numeric.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			numeric.WriteString(strconv.Itoa(int(r-'A') + 10))
		default:
			return false
		}
	}
	remainder := 0
	for _, r := range numeric.String() {
		remainder = (remainder*10 + int(r-'0')) % 97
	}
	return remainder == 1
}

func isNumericID(s string) bool {
	if !reDigitsOnly.MatchString(s) {
		return false
	}
	if len(s) < 3 || len(s) > 20 {
		return false
	}
	return !isPhone(s) && !isLuhnCandidate(s) && !isIBAN(s)
}

func winningDateTemplate(sample []string) (string, float64, bool) {
	counts := make(map[string]int)
	for _, s := range sample {
		for _, tpl := range dateTemplates {
			if _, err := time.Parse(tpl, s); err == nil {
				counts[tpl]++
				break // first matching template wins per cell, in declared priority order
			}
		}
	}
	bestTpl, bestCount := "", 0
	for _, tpl := range dateTemplates { // iterate in declared order for stable tie-break
		if c := counts[tpl]; c > bestCount {
			bestTpl, bestCount = tpl, c
		}
	}
	if bestTpl == "" {
		return "", 0, false
	}
	return bestTpl, float64(bestCount) / float64(len(sample)), true
}

func tryNameHeuristic(columnName string, sample []string) (Result, bool) {
	hits := 0
	for _, s := range sample {
		if looksLikeName(s) {
			hits++
		}
	}
	frac := float64(hits) / float64(len(sample))
	if nameColumnHint.MatchString(columnName) {
		frac += 0.2
		if frac > 1 {
			frac = 1
		}
	}
	if frac >= sampleThreshold {
		return Result{Type: Name, Confidence: frac}, true
	}
	return Result{}, false
}

func looksLikeName(s string) bool {
	tokens := strings.Fields(s)
	if len(tokens) < 1 || len(tokens) > 4 {
		return false
	}
	for _, tok := range tokens {
		if len(tok) < 2 || len(tok) > 20 {
			return false
		}
		if stoplist[strings.ToLower(tok)] {
			return false
		}
		for _, r := range tok {
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '\'' || r == '-') {
				return false
			}
		}
	}
	return true
}

func tryAddressHeuristic(sample []string) (Result, bool) {
	hits := 0
	for _, s := range sample {
		if hasStreetToken(s) && hasDigitRun(s) {
			hits++
		}
	}
	frac := float64(hits) / float64(len(sample))
	if frac >= 0.3 {
		return Result{Type: Address, Confidence: frac}, true
	}
	return Result{}, false
}

func hasStreetToken(s string) bool {
	for _, tok := range strings.Fields(s) {
		cleaned := strings.Trim(strings.ToLower(tok), ".,")
		if streetTokens[cleaned] {
			return true
		}
	}
	return false
}

func hasDigitRun(s string) bool {
	for _, tok := range strings.Fields(s) {
		if reDigitsOnly.MatchString(tok) {
			return true
		}
	}
	return false
}

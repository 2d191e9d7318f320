// Package format decomposes a string into a format signature (a per-position
// character-class mask) and the payload characters that signature carries,
// and recomposes a signature plus a replacement payload back into a string.
//
// Two strings share a format signature iff, position by position, they
// belong to the same class among {uppercase letter, lowercase letter,
// digit, a specific punctuation/whitespace codepoint}. That equality is
// exactly what "format-preserving" means throughout this repository.
package format

import (
	"strings"
	"unicode"
)

// Class is the character class assigned to one codepoint of a string.
type Class int

const (
	// ClassUpper is an uppercase letter.
	ClassUpper Class = iota
	// ClassLower is a lowercase letter.
	ClassLower
	// ClassDigit is a decimal digit.
	ClassDigit
	// ClassOther is any codepoint that isn't a letter or digit: punctuation,
	// whitespace, symbols. It is preserved literally, never re-randomized.
	ClassOther
)

// Pos is one position of a format signature.
type Pos struct {
	Class   Class
	Literal rune // meaningful only when Class == ClassOther
}

// Shape is the full, position-by-position format signature of a string.
type Shape []Pos

// Segment describes one contiguous run of a single payload class (Upper,
// Lower or Digit). OTHER positions never appear in segments: they are
// literal and break runs.
type Segment struct {
	Class  Class
	Length int
}

// Decompose walks s once and returns its shape, the payload segmentation,
// and the flat payload runes in left-to-right order (i.e. s with every
// ClassOther codepoint removed). Transformers operate on the payload runes
// and hand the result back to Recompose.
func Decompose(s string) (Shape, []Segment, []rune) {
	runes := []rune(s)
	shape := make(Shape, 0, len(runes))
	var segments []Segment
	var payload []rune

	var curClass Class
	curLen := 0
	flushing := false

	flush := func() {
		if flushing && curLen > 0 {
			segments = append(segments, Segment{Class: curClass, Length: curLen})
		}
		flushing = false
		curLen = 0
	}

	for _, r := range runes {
		c := classify(r)
		shape = append(shape, Pos{Class: c, Literal: literalFor(c, r)})

		if c == ClassOther {
			flush()
			continue
		}

		payload = append(payload, r)

		if flushing && c == curClass {
			curLen++
			continue
		}
		flush()
		curClass = c
		curLen = 1
		flushing = true
	}
	flush()

	return shape, segments, payload
}

func literalFor(c Class, r rune) rune {
	if c == ClassOther {
		return r
	}
	return 0
}

// ClassOf exposes the classification rule Decompose uses internally, for
// callers that need to reclassify individual payload runes (e.g. a
// generic, type-agnostic transformer operating directly on segments).
func ClassOf(r rune) Class {
	return classify(r)
}

func classify(r rune) Class {
	switch {
	case unicode.IsUpper(r):
		return ClassUpper
	case unicode.IsLower(r):
		return ClassLower
	case unicode.IsDigit(r):
		return ClassDigit
	default:
		return ClassOther
	}
}

// Recompose rebuilds a string from a shape and a flat sequence of payload
// runes, in the order Decompose would have produced them. len(payload) must
// equal the number of non-ClassOther positions in shape.
func Recompose(shape Shape, payload []rune) string {
	var b strings.Builder
	b.Grow(len(shape))
	i := 0
	for _, pos := range shape {
		if pos.Class == ClassOther {
			b.WriteRune(pos.Literal)
			continue
		}
		if i < len(payload) {
			b.WriteRune(payload[i])
			i++
		}
	}
	return b.String()
}

// Signature renders a shape into a comparable string key: two values have
// the same signature iff Signature(Decompose(a)) == Signature(Decompose(b)).
func (sh Shape) Signature() string {
	var b strings.Builder
	b.Grow(len(sh) * 2)
	for _, pos := range sh {
		switch pos.Class {
		case ClassUpper:
			b.WriteByte('U')
		case ClassLower:
			b.WriteByte('L')
		case ClassDigit:
			b.WriteByte('D')
		default:
			b.WriteByte('O')
			b.WriteRune(pos.Literal)
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Signature is a convenience wrapper: Signature(s) == Signature(t) iff s and
// t have the same format signature.
func Signature(s string) string {
	shape, _, _ := Decompose(s)
	return shape.Signature()
}

// PayloadLength returns the number of non-literal (payload) codepoints in s,
// which drives FPE domain sizing (spec §4.3: "total payload length drives
// FPE domain sizing").
func PayloadLength(s string) int {
	_, _, payload := Decompose(s)
	return len(payload)
}

// CaseStyle classifies the capitalization of a run of letters, used by the
// name transformer to preserve title/upper/lower case at the segment level.
type CaseStyle int

const (
	CaseLower CaseStyle = iota
	CaseUpper
	CaseTitle
	CaseMixed
)

// ClassifyCase inspects a token (a name or word) and reports its case style.
func ClassifyCase(token []rune) CaseStyle {
	if len(token) == 0 {
		return CaseLower
	}
	hasUpper, hasLower := false, false
	for _, r := range token {
		if unicode.IsUpper(r) {
			hasUpper = true
		} else if unicode.IsLower(r) {
			hasLower = true
		}
	}
	switch {
	case hasUpper && !hasLower:
		return CaseUpper
	case !hasUpper && hasLower:
		return CaseLower
	case unicode.IsUpper(token[0]) && hasLower:
		// First letter upper, rest not all upper -> title case unless mixed
		// internally (e.g. "McDonald"); treat any leading-cap + lower mix as Title.
		return CaseTitle
	default:
		return CaseMixed
	}
}

// ApplyCase renders token (assumed lowercase ASCII/letters) in the given
// style.
func ApplyCase(token string, style CaseStyle) string {
	switch style {
	case CaseUpper:
		return strings.ToUpper(token)
	case CaseLower:
		return strings.ToLower(token)
	case CaseTitle:
		if token == "" {
			return token
		}
		r := []rune(strings.ToLower(token))
		r[0] = unicode.ToUpper(r[0])
		return string(r)
	default:
		return token
	}
}

// Package mask turns raw values into character-class patterns.
//
// A pattern keeps the "shape" of a value and drops its content: "SW1A 1AA"
// becomes "AA9A 9AA" at the high Unicode grain and "A9A 9A" at the low
// Unicode grain. Patterns are what the profiler counts per field.
package mask

import (
	"strings"
	"unicode"
)

// Grain selects how much detail a pattern keeps.
type Grain uint8

const (
	// HighUnicode maps by Unicode general category, one mask rune per input rune.
	HighUnicode Grain = iota
	// LowUnicode is HighUnicode with runs of identical mask runes collapsed.
	LowUnicode
	// High maps ASCII letters and digits only; everything else is kept literally.
	High
	// Low is High with runs of identical mask runes collapsed.
	Low
)

// DefaultGrain is the grain used when none is configured.
const DefaultGrain = LowUnicode

// RulesSegment marks derived rule-output paths. Values under such paths are
// never masked.
const RulesSegment = ".Rules."

func (g Grain) String() string {
	switch g {
	case High:
		return "H"
	case Low:
		return "L"
	case HighUnicode:
		return "HU"
	case LowUnicode:
		return "LU"
	default:
		return "HU"
	}
}

// ParseGrain accepts H, L, HU (or U) and LU, case-insensitively.
// Unknown tags report ok=false and HighUnicode.
func ParseGrain(s string) (Grain, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "H":
		return High, true
	case "L":
		return Low, true
	case "HU", "U":
		return HighUnicode, true
	case "LU":
		return LowUnicode, true
	default:
		return HighUnicode, false
	}
}

// Mask returns the pattern of value at grain g. It is total and pure;
// an unrecognised grain is treated as HighUnicode.
func Mask(value string, g Grain) string {
	switch g {
	case High:
		return mapRunes(value, highRune)
	case Low:
		return compress(mapRunes(value, highRune))
	case LowUnicode:
		return compress(mapRunes(value, unicodeRune))
	default:
		return mapRunes(value, unicodeRune)
	}
}

// ForField masks value as Mask does, except that paths carrying the
// RulesSegment return value unchanged.
func ForField(path, value string, g Grain) string {
	if strings.Contains(path, RulesSegment) {
		return value
	}
	return Mask(value, g)
}

func mapRunes(s string, f func(rune) rune) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(f(r))
	}
	return b.String()
}

func highRune(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return 'a'
	case r >= 'A' && r <= 'Z':
		return 'A'
	case r >= '0' && r <= '9':
		return '9'
	default:
		return r
	}
}

func unicodeRune(r rune) rune {
	if r < unicode.MaxASCII {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a'
		case r >= 'A' && r <= 'Z':
			return 'A'
		case r >= '0' && r <= '9':
			return '9'
		}
	}
	switch r {
	case '"', '-', '.', ',':
		return r
	}
	if unicode.IsSpace(r) {
		return ' '
	}
	switch {
	case unicode.In(r, unicode.Lu, unicode.Lt):
		return 'A'
	case unicode.In(r, unicode.Ll, unicode.Lm, unicode.Lo):
		return 'a'
	case unicode.In(r, unicode.Nd, unicode.Nl, unicode.No):
		return '9'
	case unicode.In(r, unicode.Zs, unicode.Zl, unicode.Zp):
		return ' '
	default:
		return '_'
	}
}

// compress collapses runs of identical runes. The result is never empty.
func compress(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := rune(-1)
	for _, r := range s {
		if r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

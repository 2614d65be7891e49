package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFormat is returned for format names the engine does not handle.
var ErrUnknownFormat = errors.New("engine: unknown format")

// Format is the record layout of an input batch.
type Format uint8

const (
	// FormatAuto sniffs the first non-blank line.
	FormatAuto Format = iota
	FormatTabular
	FormatJSON
	// FormatHTML is recognised by Sniff but must be converted to lines by an
	// HTML adapter before profiling.
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatTabular:
		return "tabular"
	case FormatJSON:
		return "json"
	case FormatHTML:
		return "html"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat accepts auto, tabular (or csv), json (or jsonl, ndjson) and html.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "tabular", "csv", "delimited":
		return FormatTabular, nil
	case "json", "jsonl", "ndjson":
		return FormatJSON, nil
	case "html":
		return FormatHTML, nil
	default:
		return FormatAuto, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Sniff guesses the format from the first non-blank line: "{" or "[" is
// JSON, "<" is HTML, anything else is tabular.
func Sniff(lines []string) Format {
	for _, l := range lines {
		l = strings.TrimLeft(l, " \t\r\n\uFEFF")
		if l == "" {
			continue
		}
		switch l[0] {
		case '{', '[':
			return FormatJSON
		case '<':
			return FormatHTML
		default:
			return FormatTabular
		}
	}
	return FormatTabular
}

// resolveFormat turns Auto into a concrete format and rejects formats the
// engine cannot profile directly.
func resolveFormat(f Format, lines []string) (Format, error) {
	if f == FormatAuto {
		f = Sniff(lines)
	}
	switch f {
	case FormatTabular, FormatJSON:
		return f, nil
	case FormatHTML:
		return f, fmt.Errorf("%w: html input must be converted to lines first", ErrUnknownFormat)
	default:
		return f, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

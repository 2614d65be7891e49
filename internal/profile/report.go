package profile

import (
	"strings"
	"time"
	"unicode/utf8"

	"dqprobe/internal/mask"
)

// Report is a finished profile. Fields are in discovery order; within a
// field, patterns are sorted by descending count with ties broken by pattern.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Grain       mask.Grain

	// Rows counts examined records; Skipped counts records that could not
	// be parsed.
	Rows    int64
	Skipped int64

	FieldsPerLine []WidthCount
	Fields        []FieldReport
}

// WidthCount is one bucket of the fields-per-line histogram.
type WidthCount struct {
	Fields int
	Rows   int64
}

// FieldReport holds the patterns of one field, most frequent first.
type FieldReport struct {
	Index    int
	Path     string
	Patterns []PatternCount
}

// PatternCount is one pattern of a field with its occurrence count and a
// sampled example value.
type PatternCount struct {
	Pattern string
	Count   int64
	Example string
}

// Field returns the report of path, if present.
func (r *Report) Field(path string) (FieldReport, bool) {
	for _, f := range r.Fields {
		if f.Path == path {
			return f, true
		}
	}
	return FieldReport{}, false
}

// Truncate shortens s to at most maxLen runes, cutting at a word boundary and
// appending "...". Whitespace runs in a truncated result collapse to single
// spaces. A first word longer than the budget is cut mid-word.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	const ellipsis = "..."
	limit := maxLen - len(ellipsis)
	if limit <= 0 {
		return ellipsis[:maxLen]
	}

	var b strings.Builder
	n := 0
	for _, w := range strings.Fields(s) {
		wl := utf8.RuneCountInString(w)
		sep := 0
		if n > 0 {
			sep = 1
		}
		if n+sep+wl > limit {
			break
		}
		if sep == 1 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		n += sep + wl
	}
	if n == 0 {
		r := []rune(strings.TrimSpace(s))
		return string(r[:min(limit, len(r))]) + ellipsis
	}
	return b.String() + ellipsis
}

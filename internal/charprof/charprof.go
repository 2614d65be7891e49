// Package charprof counts the characters of a stream and describes each one.
package charprof

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/runenames"
)

// Unknown is the name reported for runes without a Unicode name or a
// control description.
const Unknown = "UNKNOWN"

// Entry is one distinct rune and how often it occurred.
type Entry struct {
	Rune  rune
	Count int64
}

// Hex is the code point in upper-case hex without prefix.
func (e Entry) Hex() string { return fmt.Sprintf("%X", e.Rune) }

// Escaped is the code point in U+XXXX notation.
func (e Entry) Escaped() string { return fmt.Sprintf("U+%04X", e.Rune) }

// Quoted is the rune as an ASCII-safe Go rune literal, e.g. '\t' or '\u00e9'.
func (e Entry) Quoted() string { return strconv.QuoteRuneToASCII(e.Rune) }

// Name returns the Unicode character name of e.Rune.
func (e Entry) Name() string { return Name(e.Rune) }

// Count reads r to EOF and returns one entry per distinct rune ordered by
// code point. Invalid UTF-8 bytes count as U+FFFD. ctx is checked every
// few thousand runes.
func Count(ctx context.Context, r io.Reader) ([]Entry, error) {
	counts := make(map[rune]int64)
	br := bufio.NewReader(r)
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		c, _, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		counts[c]++
	}

	out := make([]Entry, 0, len(counts))
	for c, n := range counts {
		out = append(out, Entry{Rune: c, Count: n})
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Rune, b.Rune) })
	return out, nil
}

// Name returns the Unicode name of c. Control characters and code points the
// Unicode tables leave unnamed fall back to a short description.
func Name(c rune) string {
	name := runenames.Name(c)
	if name != "" && !strings.HasPrefix(name, "<") {
		return name
	}
	if d, ok := describe(c); ok {
		return d
	}
	if name != "" {
		return name
	}
	return Unknown
}

// WriteText writes entries as a tab-separated table.
func WriteText(w io.Writer, entries []Entry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s\t%-10s\t%-8s\t%-10s\t%s\n", "hex", "char", "count", "quoted", "name")
	fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%s\n", strings.Repeat("-", 6), strings.Repeat("-", 10), strings.Repeat("-", 8), strings.Repeat("-", 10), strings.Repeat("-", 15))
	for _, e := range entries {
		fmt.Fprintf(&b, "%-6s\t%-10s\t%-8d\t%-10s\t%s\n", e.Hex(), e.Escaped(), e.Count, e.Quoted(), e.Name())
	}
	_, err := io.WriteString(w, b.String())
	return err
}

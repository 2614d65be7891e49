// Package csv splits delimited text lines into cells.
package csv

import (
	"bytes"
	"encoding/csv"
	"strings"
)

// SplitLine parses one delimited line, honouring double-quote quoting. A
// line whose quoting is malformed falls back to a plain split on delim.
func SplitLine(line string, delim rune) []string {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = delim
	cr.FieldsPerRecord = -1

	rec, err := cr.Read()
	if err != nil {
		return strings.Split(line, string(delim))
	}
	return rec
}

// HeaderNames splits a header line and normalizes each name: byte order
// mark dropped, surrounding space trimmed, inner spaces replaced by "_".
func HeaderNames(line string, delim rune) []string {
	names := SplitLine(line, delim)
	for i, h := range names {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		names[i] = strings.ReplaceAll(strings.TrimSpace(h), " ", "_")
	}
	return names
}

// JoinLine renders cells as one delimited line, quoting where needed so
// SplitLine reads the same cells back.
func JoinLine(cells []string, delim rune) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delim
	if err := w.Write(cells); err != nil {
		return strings.Join(cells, string(delim))
	}
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

// Package report renders finished profiles as text and exports them to a
// SQL sink.
package report

import (
	"fmt"
	"io"
	"strings"

	"dqprobe/internal/profile"
)

// TimestampLayout is the report header time format.
const TimestampLayout = "20060102 15:04:05"

// WriteText writes rep in the tab-separated layout:
//
//	Data Profiling Report: 20260315 12:00:00
//	Examined rows: 2
//
//	FieldsPerLine:
//	2 fields: 2 rows
//
//	column  count  pattern  example
//	col_00001_age  2  99  30
//
// Field rows are in index order, patterns by descending count.
func WriteText(w io.Writer, rep *profile.Report) error {
	var b strings.Builder

	b.WriteByte('\n')
	fmt.Fprintf(&b, "Data Profiling Report: %s\n", rep.GeneratedAt.Format(TimestampLayout))
	fmt.Fprintf(&b, "Examined rows: %d\n", rep.Rows)
	if rep.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped records: %d\n", rep.Skipped)
	}
	b.WriteByte('\n')

	b.WriteString("FieldsPerLine:\n")
	for _, wc := range rep.FieldsPerLine {
		fmt.Fprintf(&b, "%d fields: %d rows\n", wc.Fields, wc.Rows)
	}
	b.WriteByte('\n')

	fmt.Fprintf(&b, "%-32s\t%-8s\t%-8s\t%-32s\n", "column", "count", "pattern", "example")
	fmt.Fprintf(&b, "%s\t%s\t%s\t%s\n", strings.Repeat("-", 32), strings.Repeat("-", 8), strings.Repeat("-", 8), strings.Repeat("-", 32))

	for _, f := range rep.Fields {
		col := ColumnLabel(f.Index, f.Path)
		for _, p := range f.Patterns {
			fmt.Fprintf(&b, "%s\t%-8d\t%-8s\t%-32s\n", col, p.Count, p.Pattern, p.Example)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// ColumnLabel renders a field as col_<5-digit index>_<path>.
func ColumnLabel(index int, path string) string {
	return fmt.Sprintf("col_%05d_%s", index, path)
}

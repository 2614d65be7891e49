package storage

import (
	"fmt"
	"iter"
)

// Batches splits rows into chunks whose placeholder count stays within
// maxParams. Each chunk holds at least one row.
func Batches(rows [][]any, columns, maxParams int) iter.Seq[[][]any] {
	per := 1
	if columns > 0 && maxParams > columns {
		per = maxParams / columns
	}
	return func(yield func([][]any) bool) {
		for start := 0; start < len(rows); start += per {
			end := min(start+per, len(rows))
			if !yield(rows[start:end]) {
				return
			}
		}
	}
}

// CheckRows verifies every row carries one value per column.
func CheckRows(columns []string, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("storage: no columns")
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return fmt.Errorf("storage: row %d has %d values, want %d", i, len(r), len(columns))
		}
	}
	return nil
}

package report

import (
	"context"
	"errors"
	"fmt"

	"dqprobe/internal/profile"
	"dqprobe/internal/storage"
)

// DefaultTable is the sink table used when none is configured.
const DefaultTable = "dq_report"

// Columns of the sink table, in insert order.
var Columns = []string{
	"run_id",
	"generated_at",
	"field_index",
	"field_path",
	"pattern",
	"pattern_count",
	"example",
}

// TableSpec describes the sink table. Only example may be NULL-able so that
// empty samples do not need a placeholder.
func TableSpec(table string) storage.TableSpec {
	nullable := true
	return storage.TableSpec{
		Name: table,
		Columns: []storage.ColumnSpec{
			{Name: "run_id", Type: storage.Text},
			{Name: "generated_at", Type: storage.Timestamp},
			{Name: "field_index", Type: storage.Integer},
			{Name: "field_path", Type: storage.Text},
			{Name: "pattern", Type: storage.Text},
			{Name: "pattern_count", Type: storage.Integer},
			{Name: "example", Type: storage.Text, Nullable: &nullable},
		},
	}
}

// Rows flattens rep into one row per (field, pattern) in report order.
func Rows(rep *profile.Report) [][]any {
	var rows [][]any
	for _, f := range rep.Fields {
		for _, p := range f.Patterns {
			rows = append(rows, []any{
				rep.RunID,
				rep.GeneratedAt,
				int64(f.Index),
				f.Path,
				p.Pattern,
				p.Count,
				p.Example,
			})
		}
	}
	return rows
}

// Persist creates the sink table if needed and appends rep to it. It returns
// the number of rows written.
func Persist(ctx context.Context, repo storage.Repository, table string, rep *profile.Report) (int64, error) {
	if repo == nil {
		return 0, errors.New("report: nil repository")
	}
	if table == "" {
		table = DefaultTable
	}
	spec := TableSpec(table)
	if err := spec.Validate(); err != nil {
		return 0, fmt.Errorf("report table: %w", err)
	}
	if err := repo.EnsureTable(ctx, spec); err != nil {
		return 0, fmt.Errorf("ensure %s: %w", table, err)
	}

	rows := Rows(rep)
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := repo.InsertRows(ctx, table, Columns, rows)
	if err != nil {
		return n, fmt.Errorf("insert %s: %w", table, err)
	}
	return n, nil
}

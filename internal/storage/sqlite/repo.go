package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dqprobe/internal/storage"
)

// maxParams stays below SQLITE_MAX_VARIABLE_NUMBER for modernc.org/sqlite.
const maxParams = 32000

// Repo implements storage.Repository for SQLite.
//
// SQLite has no native timestamp type, so timestamps are stored as
// RFC3339Nano TEXT in UTC for reliable round-trips.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	ddl, err := buildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.CheckRows(columns, rows); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for batch := range storage.Batches(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(table, columns, batch)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(t storage.ColumnType) string {
	switch t {
	case storage.Integer:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// buildCreateTableSQL generates idempotent DDL for t.
func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		d := sqlIdent(c.Name) + " " + columnType(c.Type)
		if !c.IsNullable() {
			d += " NOT NULL"
		}
		defs = append(defs, d)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqlIdent(t.Name), strings.Join(defs, ", ")), nil
}

// buildInsertSQL builds one multi-row INSERT with "?" placeholders.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for _, v := range row {
			args = append(args, bindValue(v))
		}
	}
	return b.String(), args
}

func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return formatSQLiteTime(t)
	}
	return v
}

// formatSQLiteTime formats a time as RFC3339Nano in UTC.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

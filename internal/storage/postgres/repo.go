package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dqprobe/internal/storage"
)

// maxParams is the Postgres wire protocol limit on bind parameters.
const maxParams = 65535

/*
Repo implements storage.Repository for Postgres.

Rows are written with multi-row INSERT statements inside one transaction,
so a report is either fully persisted or not at all.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTable creates the schema (when qualified) and the table.
func (r *Repo) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(t)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", t.Name, err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// InsertRows writes rows in batches inside a single transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := storage.CheckRows(columns, rows); err != nil {
		return 0, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	for batch := range storage.Batches(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(table, columns, batch)
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// It is pure and deterministic, so placeholder numbering can be tested
// without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

// buildCreateSQL builds the optional CREATE SCHEMA and the CREATE TABLE DDL.
func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if err := t.Validate(); err != nil {
		return "", "", err
	}
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema))
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, buildColumnDef(c))
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`,
		pgTableIdent(t.Name), strings.Join(cols, ", "))
	return schemaSQL, tableSQL, nil
}

func buildColumnDef(c storage.ColumnSpec) string {
	var b strings.Builder
	b.WriteString(pgIdent(c.Name))
	b.WriteString(" ")
	switch c.Type {
	case storage.Integer:
		b.WriteString("BIGINT")
	case storage.Timestamp:
		b.WriteString("TIMESTAMPTZ")
	default:
		b.WriteString("TEXT")
	}
	if !c.IsNullable() {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// splitQualifiedName splits "schema.table". Anything other than a single
// dot is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func pgIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func pgTableIdent(name string) string {
	if schema, table := splitQualifiedName(name); schema != "" {
		return pgIdent(schema) + "." + pgIdent(table)
	}
	return pgIdent(strings.TrimSpace(name))
}

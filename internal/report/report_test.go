package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqprobe/internal/mask"
	"dqprobe/internal/profile"
	"dqprobe/internal/storage"
	_ "dqprobe/internal/storage/sqlite"
)

func sampleReport() *profile.Report {
	return &profile.Report{
		RunID:       "run-7",
		GeneratedAt: time.Date(2026, 3, 15, 9, 4, 5, 0, time.UTC),
		Grain:       mask.High,
		Rows:        3,
		Skipped:     1,
		FieldsPerLine: []profile.WidthCount{
			{Fields: 2, Rows: 2},
			{Fields: 3, Rows: 1},
		},
		Fields: []profile.FieldReport{
			{Index: 0, Path: "name", Patterns: []profile.PatternCount{
				{Pattern: "Aaa", Count: 2, Example: "Bob"},
				{Pattern: "Aaaaa", Count: 1, Example: "Alice"},
			}},
			{Index: 1, Path: "age", Patterns: []profile.PatternCount{
				{Pattern: "99", Count: 3, Example: "30"},
			}},
		},
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleReport()))

	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "", lines[0])
	assert.Equal(t, "Data Profiling Report: 20260315 09:04:05", lines[1])
	assert.Equal(t, "Examined rows: 3", lines[2])
	assert.Equal(t, "Skipped records: 1", lines[3])
	assert.Contains(t, buf.String(), "FieldsPerLine:\n2 fields: 2 rows\n3 fields: 1 rows\n")

	var rows []string
	for _, l := range lines {
		if strings.HasPrefix(l, "col_") {
			rows = append(rows, strings.TrimRight(l, " "))
		}
	}
	require.Len(t, rows, 3)
	assert.True(t, strings.HasPrefix(rows[0], "col_00000_name\t2       \tAaa     \tBob"), rows[0])
	assert.True(t, strings.HasPrefix(rows[2], "col_00001_age\t3       \t99      \t30"), rows[2])
}

func TestWriteText_NoSkippedLine(t *testing.T) {
	rep := sampleReport()
	rep.Skipped = 0

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, rep))
	assert.NotContains(t, buf.String(), "Skipped")
}

func TestColumnLabel(t *testing.T) {
	assert.Equal(t, "col_00042_addr.city", ColumnLabel(42, "addr.city"))
}

func TestRows(t *testing.T) {
	rows := Rows(sampleReport())
	require.Len(t, rows, 3)
	for _, r := range rows {
		require.Len(t, r, len(Columns))
	}
	assert.Equal(t, []any{"run-7", time.Date(2026, 3, 15, 9, 4, 5, 0, time.UTC), int64(1), "age", "99", int64(3), "30"}, rows[2])
}

type recordingRepo struct {
	spec    storage.TableSpec
	table   string
	columns []string
	rows    [][]any
	err     error
}

func (r *recordingRepo) Close() {}

func (r *recordingRepo) EnsureTable(_ context.Context, t storage.TableSpec) error {
	r.spec = t
	return nil
}

func (r *recordingRepo) InsertRows(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.table, r.columns, r.rows = table, columns, rows
	return int64(len(rows)), nil
}

func TestPersist_DefaultsTable(t *testing.T) {
	repo := &recordingRepo{}
	n, err := Persist(context.Background(), repo, "", sampleReport())
	require.NoError(t, err)

	assert.Equal(t, int64(3), n)
	assert.Equal(t, DefaultTable, repo.spec.Name)
	assert.Equal(t, DefaultTable, repo.table)
	assert.Equal(t, Columns, repo.columns)
	assert.Equal(t, Columns, repo.spec.ColumnNames())
}

func TestPersist_EmptyReportCreatesTableOnly(t *testing.T) {
	repo := &recordingRepo{}
	n, err := Persist(context.Background(), repo, "t", &profile.Report{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "t", repo.spec.Name)
	assert.Nil(t, repo.rows)
}

func TestPersist_WrapsInsertError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Persist(context.Background(), &recordingRepo{err: boom}, "t", sampleReport())
	require.ErrorIs(t, err, boom)

	_, err = Persist(context.Background(), nil, "t", sampleReport())
	require.Error(t, err)
}

func TestPersist_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.db")
	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: path})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	first := sampleReport()
	second := sampleReport()
	second.RunID = "run-8"
	for _, rep := range []*profile.Report{first, second} {
		n, err := Persist(ctx, repo, "dq_report", rep)
		require.NoError(t, err)
		require.Equal(t, int64(3), n)
	}

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var runs int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT run_id) FROM dq_report`).Scan(&runs))
	assert.Equal(t, 2, runs)

	var pattern, example, generated string
	var count int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT pattern, pattern_count, example, generated_at FROM dq_report WHERE run_id = ? AND field_path = ?`,
		"run-8", "age").Scan(&pattern, &count, &example, &generated))
	assert.Equal(t, "99", pattern)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, "30", example)
	assert.Equal(t, "2026-03-15T09:04:05Z", generated)
}

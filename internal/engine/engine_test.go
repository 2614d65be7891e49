package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"dqprobe/internal/mask"
	"dqprobe/internal/metrics"
	"dqprobe/internal/profile"
	"dqprobe/internal/walker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(opts ...Option) *Engine {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithRunID(func() string { return "run-1" }),
	}
	return New(append(base, opts...)...)
}

func tabular(delim rune) Config {
	c := DefaultConfig()
	c.Format = FormatTabular
	c.Delimiter = delim
	return c
}

func patterns(t *testing.T, rep *profile.Report, path string) map[string]int64 {
	t.Helper()
	f, ok := rep.Field(path)
	require.True(t, ok, "field %q missing", path)
	out := make(map[string]int64, len(f.Patterns))
	for _, p := range f.Patterns {
		out[p.Pattern] = p.Count
	}
	return out
}

func fieldPaths(rep *profile.Report) []string {
	out := make([]string, len(rep.Fields))
	for i, f := range rep.Fields {
		out[i] = f.Path
	}
	return out
}

func TestProfile_EndToEndTabular(t *testing.T) {
	cfg := tabular(',')
	cfg.Grain = mask.High

	rep, err := newTestEngine().Profile(context.Background(), []string{"name,age", "Alice,30", "Bob,30"}, cfg)
	require.NoError(t, err)

	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, fixedNow, rep.GeneratedAt)
	assert.Equal(t, mask.High, rep.Grain)
	assert.Equal(t, int64(2), rep.Rows)
	assert.Equal(t, []string{"name", "age"}, fieldPaths(rep))

	age, _ := rep.Field("age")
	require.Len(t, age.Patterns, 1)
	assert.Equal(t, "99", age.Patterns[0].Pattern)
	assert.Equal(t, int64(2), age.Patterns[0].Count)
	assert.Equal(t, "30", age.Patterns[0].Example)

	assert.Equal(t, map[string]int64{"Aaaaa": 1, "Aaa": 1}, patterns(t, rep, "name"))
	assert.Equal(t, []profile.WidthCount{{Fields: 2, Rows: 2}}, rep.FieldsPerLine)
}

func TestProfile_RaggedRow(t *testing.T) {
	rep, err := newTestEngine().Profile(context.Background(), []string{"a,b", "1,2,3", "4,5,6,7"}, tabular(','))
	require.NoError(t, err)

	paths := fieldPaths(rep)
	require.Len(t, paths, 4)
	assert.Equal(t, []string{"a", "b"}, paths[:2])
	assert.ElementsMatch(t, []string{"RaggedErr1", "RaggedErr2"}, paths[2:])
	assert.Equal(t, map[string]int64{"9": 2}, patterns(t, rep, "RaggedErr1"))
	assert.Equal(t, map[string]int64{"9": 1}, patterns(t, rep, "RaggedErr2"))
	assert.Equal(t, []profile.WidthCount{{Fields: 3, Rows: 1}, {Fields: 4, Rows: 1}}, rep.FieldsPerLine)
}

func TestProfile_HeaderRowSkipsPreamble(t *testing.T) {
	cfg := tabular('|')
	cfg.HeaderRow = 2
	lines := []string{"exported 2026-03-01", "", "first name|city", "Ann|Leeds", "", "Bo|York"}

	rep, err := newTestEngine().Profile(context.Background(), lines, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"first_name", "city"}, fieldPaths(rep))
	assert.Equal(t, int64(2), rep.Rows)
}

func TestProfile_HeaderRowBeyondInput(t *testing.T) {
	cfg := tabular(',')
	cfg.HeaderRow = 5

	rep, err := newTestEngine().Profile(context.Background(), []string{"a,b", "1,2"}, cfg)
	require.NoError(t, err)
	assert.Empty(t, rep.Fields)
	assert.Zero(t, rep.Rows)
}

func TestProfile_JSONLines(t *testing.T) {
	lines := []string{
		`{"id":1,"tags":["x","y"],"addr":{"city":"Leeds"}}`,
		`not json`,
		`{"id":22,"addr":{"city":"York","geo":{"lat":1.5}}}`,
	}
	cfg := DefaultConfig()
	cfg.PathDepth = 2
	cfg.CollapseArrayIndices = true
	cfg.Grain = mask.Low

	rep, err := newTestEngine().Profile(context.Background(), lines, cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(2), rep.Rows)
	assert.Equal(t, int64(1), rep.Skipped)
	// addr.geo sits at depth 2 and is dropped.
	assert.ElementsMatch(t, []string{"id", "tags[]", "addr.city"}, fieldPaths(rep))
	assert.Equal(t, map[string]int64{"9": 2}, patterns(t, rep, "id"))
	assert.Equal(t, map[string]int64{"a": 2}, patterns(t, rep, "tags[]"))
}

func TestProfile_ProfileRules(t *testing.T) {
	cfg := tabular(',')
	cfg.ProfileRules = true
	cfg.Workers = 1
	rec := metrics.NewRecorder()

	rep, err := newTestEngine(WithMetrics(rec)).Profile(context.Background(),
		[]string{"country,age", "France,30", "France,41"}, cfg)
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{"FRA": 2}, patterns(t, rep, "country.Rules.std_country_iso3"))
	assert.Equal(t, map[string]int64{"EU": 2}, patterns(t, rep, "country.Rules.std_region_code"))
	assert.Equal(t, map[string]int64{"true": 2}, patterns(t, rep, "age.Rules.is_numeric"))
	assert.Equal(t, map[string]int64{"2": 2}, patterns(t, rep, "age.Rules.string_length"))

	assert.Equal(t, float64(1), rec.Counter(metrics.LookupTotal, metrics.Labels{"result": "miss"}))
	assert.Equal(t, float64(1), rec.Counter(metrics.LookupTotal, metrics.Labels{"result": "hit"}))
}

func TestProfile_Metrics(t *testing.T) {
	rec := metrics.NewRecorder()
	_, err := newTestEngine(WithMetrics(rec)).Profile(context.Background(), []string{"a", "1", "2,3"}, tabular(','))
	require.NoError(t, err)

	assert.Equal(t, float64(2), rec.Counter(metrics.RecordsTotal, metrics.Labels{"kind": "processed"}))
	assert.Equal(t, float64(1), rec.Counter(metrics.RecordsTotal, metrics.Labels{"kind": "ragged"}))
	assert.Equal(t, float64(2), rec.Counter(metrics.FieldsTotal, nil))
	for _, stage := range []State{HeaderProcessed, FanOut, Merged, Reported} {
		labels := metrics.Labels{"stage": stage.String(), "status": "ok"}
		assert.Equal(t, float64(1), rec.Counter(metrics.StageTotal, labels), "stage %s", stage)
		assert.Len(t, rec.Samples(metrics.StageDuration, labels), 1)
	}
}

func TestProfile_ConcurrentMatchesSequential(t *testing.T) {
	lines := []string{"id,name,city"}
	cities := []string{"Leeds", "York", "Hull", "Bath"}
	for i := range 500 {
		lines = append(lines, strings.Join([]string{
			strings.Repeat("9", 1+i%4), cities[i%len(cities)] + strings.Repeat("x", i%3), "c" + cities[i%2],
		}, ","))
	}

	seqCfg := tabular(',')
	seqCfg.Workers = 1
	parCfg := tabular(',')
	parCfg.Workers = 8

	e := newTestEngine()
	seq, err := e.Profile(context.Background(), lines, seqCfg)
	require.NoError(t, err)
	par, err := e.Profile(context.Background(), lines, parCfg)
	require.NoError(t, err)

	counts := func(rep *profile.Report) map[string]map[string]int64 {
		out := map[string]map[string]int64{}
		for _, f := range rep.Fields {
			out[f.Path] = patterns(t, rep, f.Path)
		}
		return out
	}
	if diff := cmp.Diff(counts(seq), counts(par)); diff != "" {
		t.Fatalf("parallel profile differs (-seq +par):\n%s", diff)
	}
	assert.Equal(t, fieldPaths(seq), fieldPaths(par))
}

func TestProfile_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Profile(ctx, []string{"a", "1", "2"}, tabular(','))
	require.ErrorIs(t, err, context.Canceled)
}

func TestProfile_UnknownFormat(t *testing.T) {
	_, err := newTestEngine().Profile(context.Background(), []string{"<table></table>"}, DefaultConfig())
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ParseFormat("parquet")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		lines []string
		want  Format
	}{
		{[]string{"", `  {"a":1}`}, FormatJSON},
		{[]string{"[1,2]"}, FormatJSON},
		{[]string{"\uFEFF<html>"}, FormatHTML},
		{[]string{"a,b"}, FormatTabular},
		{nil, FormatTabular},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Sniff(tc.lines), "lines %q", tc.lines)
	}
}

func TestMachine_RejectsIllegalTransition(t *testing.T) {
	rec := metrics.NewRecorder()
	sm := &machine{now: time.Now, log: zap.NewNop(), m: rec}

	err := sm.run(Merged, func() error { return nil })
	require.ErrorIs(t, err, ErrIllegalTransition)

	boom := errors.New("boom")
	require.ErrorIs(t, sm.run(FanOut, func() error { return boom }), boom)
	assert.Equal(t, NotStarted, sm.state)
	assert.Equal(t, float64(1), rec.Counter(metrics.StageTotal, metrics.Labels{"stage": "fanout", "status": "error"}))

	require.NoError(t, sm.run(FanOut, func() error { return nil }))
	require.ErrorIs(t, sm.run(HeaderProcessed, func() error { return nil }), ErrIllegalTransition)
}

func TestEnhance_Record(t *testing.T) {
	e := newTestEngine()
	rec := walker.ObjectValue(
		walker.Member{Key: "age", Value: walker.NumberValue("30")},
		walker.Member{Key: "note", Value: walker.NullValue()},
	)

	got, err := json.Marshal(e.Enhance(rec, mask.High))
	require.NoError(t, err)
	want := `{"age":{"raw":30,"HU":"99","LU":"9","pattern":"99","Rules":{"string_length":2,"is_numeric":true}},"note":null}`
	assert.Equal(t, want, string(got))

	got, err = json.Marshal(e.Enhance(rec, mask.LowUnicode))
	require.NoError(t, err)
	assert.NotContains(t, string(got), `"pattern"`)
}

func TestEnhanceLines_TabularFlat(t *testing.T) {
	var out []string
	err := newTestEngine().EnhanceLines(context.Background(), []string{"age", "30", "", "7,x"}, tabular(','), true,
		func(v walker.Value) error {
			b, err := json.Marshal(v)
			out = append(out, string(b))
			return err
		})
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, `{"age.raw":"30","age.HU":"99","age.LU":"9","age.Rules.string_length":2,"age.Rules.is_numeric":true}`, out[0])
	assert.Contains(t, out[1], `"RaggedErr1.raw":"x"`)
}

func TestEnhanceLines_RawKeepsJSONType(t *testing.T) {
	var out []string
	err := newTestEngine().EnhanceLines(context.Background(), []string{`{"arr":[1,true,"2"]}`}, DefaultConfig(), true,
		func(v walker.Value) error {
			b, err := json.Marshal(v)
			out = append(out, string(b))
			return err
		})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Contains(t, out[0], `"arr[0].raw":1,`)
	assert.Contains(t, out[0], `"arr[1].raw":true,`)
	assert.Contains(t, out[0], `"arr[2].raw":"2",`)
	assert.Contains(t, out[0], `"arr[0].LU":"9"`)
	assert.Contains(t, out[0], `"arr[2].LU":"9"`)
}

func TestEnhanceLines_JSONNestedKeepsOrder(t *testing.T) {
	var out []walker.Value
	lines := []string{`{"b":"x","a":{"c":"Y"}}`, `{oops`, `{"z":1}`}
	err := newTestEngine().EnhanceLines(context.Background(), lines, DefaultConfig(), false,
		func(v walker.Value) error {
			out = append(out, v)
			return nil
		})
	require.NoError(t, err)
	require.Len(t, out, 2)

	keys := func(v walker.Value) []string {
		var ks []string
		for _, m := range v.Members() {
			ks = append(ks, m.Key)
		}
		return ks
	}
	assert.Equal(t, []string{"b", "a"}, keys(out[0]))
	c, ok := out[0].Members()[1].Value.Get("c")
	require.True(t, ok)
	hu, _ := c.Get(KeyHU)
	assert.Equal(t, "A", hu.AsString())
	assert.Equal(t, []string{"z"}, keys(out[1]))
}

func TestEnhanceLines_EmitErrorStops(t *testing.T) {
	stop := errors.New("stop")
	err := newTestEngine().EnhanceLines(context.Background(), []string{`{"a":1}`, `{"a":2}`}, DefaultConfig(), false,
		func(walker.Value) error { return stop })
	require.ErrorIs(t, err, stop)
}

package engine

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dqprobe/internal/mask"
	"dqprobe/internal/metrics"
	"dqprobe/internal/parser/csv"
	"dqprobe/internal/profile"
	"dqprobe/internal/walker"
)

// chunksPerWorker splits the batch finer than the pool size so a slow chunk
// does not leave other workers idle.
const chunksPerWorker = 4

// recorder is the part of a profile.Shard that record handlers need.
type recorder interface {
	Record(path, raw string, g mask.Grain)
	ObserveRow(width int)
	Skip()
}

// Profile profiles lines and returns the finished report.
//
// The run moves through NotStarted, HeaderProcessed, FanOut, Merged and
// Reported. Tabular input takes its field names from line cfg.HeaderRow;
// earlier lines are ignored. Remaining lines are split into chunks, each
// recorded into its own Shard by a bounded worker pool and merged back
// once every worker is done.
//
// Edge cases:
//   - A header row beyond the input yields an empty report.
//   - Empty tabular lines are skipped and not counted.
//   - With cfg.ProfileRules set, rule outcomes are profiled as
//     <field>.Rules.<name> fields alongside the values.
//
// Errors:
//   - ErrUnknownFormat for HTML or an unknown cfg.Format.
//   - ctx.Err() when ctx is cancelled mid-run.
//   - Bad records never fail the run. Invalid JSON lines count as skipped,
//     malformed quoting falls back to a plain split, and extra cells land in
//     RaggedErrN columns.
func (e *Engine) Profile(ctx context.Context, lines []string, cfg Config) (*profile.Report, error) {
	format, err := resolveFormat(cfg.Format, lines)
	if err != nil {
		return nil, err
	}

	r := &run{
		e:      e,
		cfg:    cfg,
		format: format,
		acc:    profile.NewAccumulator(e.rnd),
		sm:     &machine{now: e.now, log: e.log, m: e.metrics},
	}
	hits0, misses0 := e.rules.Countries().Stats()

	data := lines
	if format == FormatTabular {
		if err := r.sm.run(HeaderProcessed, func() error {
			data = r.processHeader(lines)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	var shards []*profile.Shard
	if err := r.sm.run(FanOut, func() error {
		shards, err = r.fanOut(ctx, data)
		return err
	}); err != nil {
		return nil, err
	}

	if err := r.sm.run(Merged, func() error {
		for _, s := range shards {
			r.acc.Merge(s)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var rep *profile.Report
	if err := r.sm.run(Reported, func() error {
		rep = r.acc.Snapshot(cfg.MaxExampleLen)
		rep.RunID = e.newRunID()
		rep.GeneratedAt = e.now()
		rep.Grain = cfg.Grain
		return nil
	}); err != nil {
		return nil, err
	}

	hits1, misses1 := e.rules.Countries().Stats()
	r.emit(rep, hits1-hits0, misses1-misses0)
	return rep, nil
}

// run is the state of one Profile call.
type run struct {
	e      *Engine
	cfg    Config
	format Format
	acc    *profile.Accumulator
	sm     *machine

	names       []string
	headerWidth int
	ragged      atomic.Int64
}

// processHeader declares the header columns in order and returns the data
// lines that follow the header row.
func (r *run) processHeader(lines []string) []string {
	if r.cfg.HeaderRow >= len(lines) {
		r.e.log.Warn("header row beyond input", zap.Int("header_row", r.cfg.HeaderRow), zap.Int("lines", len(lines)))
		return nil
	}
	r.names = csv.HeaderNames(lines[r.cfg.HeaderRow], r.cfg.delimiter())
	r.headerWidth = len(r.names)
	r.acc.Declare(r.names...)
	return lines[r.cfg.HeaderRow+1:]
}

func (r *run) fanOut(ctx context.Context, data []string) ([]*profile.Shard, error) {
	workers := r.cfg.workers()
	size := max(1, (len(data)+workers*chunksPerWorker-1)/(workers*chunksPerWorker))
	nchunks := (len(data) + size - 1) / size
	shards := make([]*profile.Shard, nchunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range nchunks {
		chunk := data[i*size : min((i+1)*size, len(data))]
		shard := r.acc.NewShard(nil)
		shards[i] = shard
		g.Go(func() error {
			for _, line := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				r.profileLine(shard, line)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shards, nil
}

func (r *run) profileLine(rec recorder, line string) {
	if line == "" {
		return
	}
	if r.format == FormatJSON {
		r.profileJSON(rec, line)
		return
	}
	r.profileRow(rec, line)
}

func (r *run) profileRow(rec recorder, line string) {
	cells := csv.SplitLine(line, r.cfg.delimiter())
	rec.ObserveRow(len(cells))
	if len(cells) > r.headerWidth {
		r.ragged.Add(1)
		r.e.log.Debug("ragged row", zap.Int("cells", len(cells)), zap.Int("header_width", r.headerWidth))
	}
	for i, cell := range cells {
		name := r.columnName(i)
		rec.Record(name, cell, r.cfg.Grain)
		if r.cfg.ProfileRules {
			r.recordRules(rec, name, cell)
		}
	}
}

func (r *run) columnName(i int) string {
	if i < r.headerWidth {
		return r.names[i]
	}
	return profile.RaggedName(i + 1 - r.headerWidth)
}

func (r *run) profileJSON(rec recorder, line string) {
	v, err := walker.Parse([]byte(line))
	if err != nil {
		rec.Skip()
		r.e.log.Debug("skipping invalid json line", zap.Error(err))
		return
	}
	width := 0
	for path, s := range walker.Walk(v, r.cfg.walkOptions()) {
		raw := s.Text()
		rec.Record(path, raw, r.cfg.Grain)
		if r.cfg.ProfileRules {
			r.recordRules(rec, path, raw)
		}
		width++
	}
	rec.ObserveRow(width)
}

// recordRules records each assertion outcome for raw under
// "<path>.Rules.<name>". Those paths bypass masking, so the report counts
// outcome values.
func (r *run) recordRules(rec recorder, path, raw string) {
	lu := mask.ForField(path, raw, mask.LowUnicode)
	hu := mask.ForField(path, raw, mask.HighUnicode)
	for _, a := range r.e.rules.Assert(path, raw, lu, hu) {
		rec.Record(path+mask.RulesSegment+a.Name, a.Value.Text(), r.cfg.Grain)
	}
}

func (r *run) emit(rep *profile.Report, hits, misses int64) {
	m := r.e.metrics
	m.IncCounter(metrics.RecordsTotal, float64(rep.Rows), metrics.Labels{"kind": "processed"})
	m.IncCounter(metrics.RecordsTotal, float64(rep.Skipped), metrics.Labels{"kind": "skipped"})
	m.IncCounter(metrics.RecordsTotal, float64(r.ragged.Load()), metrics.Labels{"kind": "ragged"})
	m.IncCounter(metrics.FieldsTotal, float64(len(rep.Fields)), nil)
	if hits > 0 {
		m.IncCounter(metrics.LookupTotal, float64(hits), metrics.Labels{"result": "hit"})
	}
	if misses > 0 {
		m.IncCounter(metrics.LookupTotal, float64(misses), metrics.Labels{"result": "miss"})
	}

	r.e.log.Info("profile complete",
		zap.String("run_id", rep.RunID),
		zap.Stringer("format", r.format),
		zap.Stringer("grain", rep.Grain),
		zap.Int64("rows", rep.Rows),
		zap.Int64("skipped", rep.Skipped),
		zap.Int64("ragged", r.ragged.Load()),
		zap.Int("fields", len(rep.Fields)),
	)
}

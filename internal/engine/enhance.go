package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dqprobe/internal/mask"
	"dqprobe/internal/parser/csv"
	"dqprobe/internal/profile"
	"dqprobe/internal/walker"
)

// Annotation member keys.
const (
	KeyRaw     = "raw"
	KeyHU      = "HU"
	KeyLU      = "LU"
	KeyPattern = "pattern"
	KeyRules   = "Rules"
)

// Enhance replaces every non-null scalar of record with an annotation
// object {"raw", "HU", "LU", ["pattern"], ["Rules"]}. "pattern" is added
// for the ASCII grains (H, L), whose mask differs from both Unicode masks.
// Rules are evaluated against the nearest object key. Object key order is
// kept.
func (e *Engine) Enhance(record walker.Value, g mask.Grain) walker.Value {
	return e.enhance("", record, g)
}

func (e *Engine) enhance(key string, v walker.Value, g mask.Grain) walker.Value {
	switch v.Kind() {
	case walker.Object:
		in := v.Members()
		out := make([]walker.Member, len(in))
		for i, m := range in {
			out[i] = walker.Member{Key: m.Key, Value: e.enhance(m.Key, m.Value, g)}
		}
		return walker.ObjectValue(out...)
	case walker.Array:
		in := v.Elems()
		out := make([]walker.Value, len(in))
		for i, el := range in {
			out[i] = e.enhance(key, el, g)
		}
		return walker.ArrayValue(out...)
	case walker.Null:
		return v
	default:
		return e.annotate(key, v, g)
	}
}

// annotate keeps the scalar as given under KeyRaw, so JSON numbers and
// booleans stay typed. Masks and rules see its text form.
func (e *Engine) annotate(field string, scalar walker.Value, g mask.Grain) walker.Value {
	raw := scalar.Text()
	hu := mask.ForField(field, raw, mask.HighUnicode)
	lu := mask.ForField(field, raw, mask.LowUnicode)

	members := []walker.Member{
		{Key: KeyRaw, Value: scalar},
		{Key: KeyHU, Value: walker.StringValue(hu)},
		{Key: KeyLU, Value: walker.StringValue(lu)},
	}
	if g == mask.High || g == mask.Low {
		members = append(members, walker.Member{Key: KeyPattern, Value: walker.StringValue(mask.ForField(field, raw, g))})
	}
	if res := e.rules.Assert(field, raw, lu, hu); len(res) > 0 {
		members = append(members, walker.Member{Key: KeyRules, Value: res.Object()})
	}
	return walker.ObjectValue(members...)
}

// EnhanceLines enhances a batch and calls emit once per record in input
// order. Tabular lines are keyed by the header row (ragged cells by
// RaggedErrN); JSON lines that fail to parse are skipped. With flat set,
// each record is flattened to dotted keys such as "a.b.HU" and
// "a.b.Rules.is_numeric".
func (e *Engine) EnhanceLines(ctx context.Context, lines []string, cfg Config, flat bool, emit func(walker.Value) error) error {
	format, err := resolveFormat(cfg.Format, lines)
	if err != nil {
		return err
	}

	var names []string
	data := lines
	if format == FormatTabular {
		if cfg.HeaderRow >= len(lines) {
			return nil
		}
		names = csv.HeaderNames(lines[cfg.HeaderRow], cfg.delimiter())
		data = lines[cfg.HeaderRow+1:]
	}

	toRecord := func(line string) (walker.Value, bool) {
		if format == FormatJSON {
			v, err := walker.Parse([]byte(line))
			if err != nil {
				e.log.Debug("skipping invalid json line", zap.Error(err))
				return walker.Value{}, false
			}
			return v, true
		}
		cells := csv.SplitLine(line, cfg.delimiter())
		members := make([]walker.Member, len(cells))
		for i, c := range cells {
			name := profile.RaggedName(i + 1 - len(names))
			if i < len(names) {
				name = names[i]
			}
			members[i] = walker.Member{Key: name, Value: walker.StringValue(c)}
		}
		return walker.ObjectValue(members...), true
	}

	flatOpts := walker.Options{MaxDepth: cfg.walkOptions().MaxDepth, CollapseArrayIndices: false}
	if flatOpts.MaxDepth <= 0 {
		flatOpts.MaxDepth = walker.DefaultMaxDepth
	}
	// Annotation objects and their Rules add two levels.
	flatOpts.MaxDepth += 2

	out := make([]walker.Value, len(data))
	ok := make([]bool, len(data))

	workers := cfg.workers()
	size := max(1, (len(data)+workers*chunksPerWorker-1)/(workers*chunksPerWorker))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if data[i] == "" {
					continue
				}
				rec, good := toRecord(data[i])
				if !good {
					continue
				}
				v := e.Enhance(rec, cfg.Grain)
				if flat {
					v = walker.Flatten(v, flatOpts)
				}
				out[i], ok[i] = v, true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, v := range out {
		if !ok[i] {
			continue
		}
		if err := emit(v); err != nil {
			return fmt.Errorf("emit record %d: %w", i, err)
		}
	}
	return nil
}

// Package profile accumulates per-field pattern frequencies with one
// reservoir-sampled example per pattern.
//
// An Accumulator is safe for concurrent use. Workers that want to avoid lock
// traffic record into a Shard and merge it back once at the end; the field
// registry is always shared so every field gets one stable index.
package profile

import (
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"

	"dqprobe/internal/mask"
)

// RaggedPrefix names synthetic columns for cells past the header width.
const RaggedPrefix = "RaggedErr"

// RaggedName returns the synthetic column name for the n-th extra cell (1-based).
func RaggedName(n int) string {
	return RaggedPrefix + strconv.Itoa(n)
}

type bucket struct {
	count   int64
	example string
}

type entry struct {
	path string

	mu       sync.Mutex
	patterns map[string]*bucket
}

// Accumulator holds the field registry and the merged pattern tables.
type Accumulator struct {
	rnd func() float64

	mu     sync.RWMutex
	index  map[string]int
	fields []*entry

	statsMu sync.Mutex
	rows    int64
	skipped int64
	widths  map[int]int64
}

// NewAccumulator returns an empty accumulator. rnd must return values in
// [0,1) and be safe for concurrent use; nil selects math/rand/v2.Float64.
func NewAccumulator(rnd func() float64) *Accumulator {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Accumulator{
		rnd:    rnd,
		index:  make(map[string]int),
		widths: make(map[int]int64),
	}
}

// Field returns the stable index of path, registering it on first sight.
// Registration is exclusive, so concurrent callers racing on a new path
// agree on one index.
func (a *Accumulator) Field(path string) int {
	a.mu.RLock()
	ix, ok := a.index[path]
	a.mu.RUnlock()
	if ok {
		return ix
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ix, ok := a.index[path]; ok {
		return ix
	}
	ix = len(a.fields)
	a.index[path] = ix
	a.fields = append(a.fields, &entry{path: path, patterns: make(map[string]*bucket)})
	return ix
}

// Declare registers paths in order. Used to seed header columns before any
// data row is seen.
func (a *Accumulator) Declare(paths ...string) {
	for _, p := range paths {
		a.Field(p)
	}
}

// Len reports the number of registered fields.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.fields)
}

func (a *Accumulator) entry(ix int) *entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fields[ix]
}

// Record counts raw under path's pattern at grain g and reservoir-samples
// the example: after n observations of a pattern each of them is the stored
// example with probability 1/n.
func (a *Accumulator) Record(path, raw string, g mask.Grain) {
	e := a.entry(a.Field(path))
	pattern := mask.ForField(path, raw, g)

	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.patterns[pattern]
	if !ok {
		e.patterns[pattern] = &bucket{count: 1, example: raw}
		return
	}
	b.count++
	if a.rnd() < 1/float64(b.count) {
		b.example = raw
	}
}

// ObserveRow counts one examined row carrying width fields.
func (a *Accumulator) ObserveRow(width int) {
	a.statsMu.Lock()
	a.rows++
	a.widths[width]++
	a.statsMu.Unlock()
}

// Skip counts one record that could not be profiled.
func (a *Accumulator) Skip() {
	a.statsMu.Lock()
	a.skipped++
	a.statsMu.Unlock()
}

// Merge folds a shard into a. Per pattern the counts add up and the example
// is taken from the shard with probability shardCount/total, so the example
// stays a uniform pick over all observations.
//
// When to use: once per shard after its worker has finished. Shards are not
// safe for concurrent use; Merge itself may run concurrently with other
// Merge and Record calls.
//
// Edge cases:
//   - A pattern new to a is copied with the shard's count and example.
//   - Row, skip and fields-per-line counters add up unchanged.
func (a *Accumulator) Merge(s *Shard) {
	for ix, local := range s.entries {
		e := a.entry(ix)
		e.mu.Lock()
		for pattern, sb := range local {
			b, ok := e.patterns[pattern]
			if !ok {
				e.patterns[pattern] = &bucket{count: sb.count, example: sb.example}
				continue
			}
			total := b.count + sb.count
			if a.rnd() < float64(sb.count)/float64(total) {
				b.example = sb.example
			}
			b.count = total
		}
		e.mu.Unlock()
	}

	a.statsMu.Lock()
	a.rows += s.rows
	a.skipped += s.skipped
	for w, n := range s.widths {
		a.widths[w] += n
	}
	a.statsMu.Unlock()
}

// Snapshot builds a report of the current state. Examples are truncated to
// maxExampleLen runes at a word boundary; zero disables truncation.
func (a *Accumulator) Snapshot(maxExampleLen int) *Report {
	a.mu.RLock()
	fields := append([]*entry(nil), a.fields...)
	a.mu.RUnlock()

	rep := &Report{Fields: make([]FieldReport, 0, len(fields))}
	for ix, e := range fields {
		fr := FieldReport{Index: ix, Path: e.path}
		e.mu.Lock()
		for pattern, b := range e.patterns {
			fr.Patterns = append(fr.Patterns, PatternCount{
				Pattern: pattern,
				Count:   b.count,
				Example: Truncate(b.example, maxExampleLen),
			})
		}
		e.mu.Unlock()
		sort.Slice(fr.Patterns, func(i, j int) bool {
			pi, pj := fr.Patterns[i], fr.Patterns[j]
			if pi.Count != pj.Count {
				return pi.Count > pj.Count
			}
			return pi.Pattern < pj.Pattern
		})
		rep.Fields = append(rep.Fields, fr)
	}

	a.statsMu.Lock()
	rep.Rows = a.rows
	rep.Skipped = a.skipped
	for w, n := range a.widths {
		rep.FieldsPerLine = append(rep.FieldsPerLine, WidthCount{Fields: w, Rows: n})
	}
	a.statsMu.Unlock()
	sort.Slice(rep.FieldsPerLine, func(i, j int) bool {
		return rep.FieldsPerLine[i].Fields < rep.FieldsPerLine[j].Fields
	})

	return rep
}

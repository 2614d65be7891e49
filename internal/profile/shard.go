package profile

import (
	"dqprobe/internal/mask"
)

// Shard is a worker-local accumulator. It is not safe for concurrent use.
// Fields are still registered in the parent so indexes stay global.
type Shard struct {
	parent *Accumulator
	rnd    func() float64

	entries map[int]map[string]*bucket
	rows    int64
	skipped int64
	widths  map[int]int64
}

// NewShard returns an empty shard bound to a's registry. rnd may be a
// non-concurrent source since only the owning worker uses it; nil falls
// back to the accumulator's source.
func (a *Accumulator) NewShard(rnd func() float64) *Shard {
	if rnd == nil {
		rnd = a.rnd
	}
	return &Shard{
		parent:  a,
		rnd:     rnd,
		entries: make(map[int]map[string]*bucket),
		widths:  make(map[int]int64),
	}
}

// Record is the shard-local form of Accumulator.Record.
func (s *Shard) Record(path, raw string, g mask.Grain) {
	ix := s.parent.Field(path)
	pattern := mask.ForField(path, raw, g)

	local, ok := s.entries[ix]
	if !ok {
		local = make(map[string]*bucket)
		s.entries[ix] = local
	}
	b, ok := local[pattern]
	if !ok {
		local[pattern] = &bucket{count: 1, example: raw}
		return
	}
	b.count++
	if s.rnd() < 1/float64(b.count) {
		b.example = raw
	}
}

// ObserveRow is the shard-local form of Accumulator.ObserveRow.
func (s *Shard) ObserveRow(width int) {
	s.rows++
	s.widths[width]++
}

// Skip is the shard-local form of Accumulator.Skip.
func (s *Shard) Skip() {
	s.skipped++
}

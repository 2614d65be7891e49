package profile

import (
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqprobe/internal/mask"
)

func seeded(seed uint64) func() float64 {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Float64
}

func TestAccumulator_CountsAndOrder(t *testing.T) {
	acc := NewAccumulator(seeded(1))
	acc.Declare("name", "age")
	acc.Record("age", "42", mask.LowUnicode)
	acc.Record("age", "7", mask.LowUnicode)
	acc.Record("age", "x", mask.LowUnicode)
	acc.Record("city", "Leeds", mask.LowUnicode)

	rep := acc.Snapshot(0)
	require.Len(t, rep.Fields, 3)
	assert.Equal(t, []string{"name", "age", "city"}, []string{rep.Fields[0].Path, rep.Fields[1].Path, rep.Fields[2].Path})
	assert.Empty(t, rep.Fields[0].Patterns)

	age := rep.Fields[1]
	require.Len(t, age.Patterns, 2)
	assert.Equal(t, "9", age.Patterns[0].Pattern)
	assert.EqualValues(t, 2, age.Patterns[0].Count)
	assert.Contains(t, []string{"42", "7"}, age.Patterns[0].Example)
	assert.Equal(t, PatternCount{Pattern: "a", Count: 1, Example: "x"}, age.Patterns[1])
}

func TestAccumulator_RulesPathIsIdentity(t *testing.T) {
	acc := NewAccumulator(seeded(2))
	acc.Record("age.Rules.is_numeric", "true", mask.LowUnicode)
	acc.Record("age.Rules.is_numeric", "false", mask.LowUnicode)

	f, ok := acc.Snapshot(0).Field("age.Rules.is_numeric")
	require.True(t, ok)
	require.Len(t, f.Patterns, 2)
	assert.ElementsMatch(t, []string{"true", "false"}, []string{f.Patterns[0].Pattern, f.Patterns[1].Pattern})
}

func TestAccumulator_ConcurrentRecord(t *testing.T) {
	acc := NewAccumulator(nil)
	const workers, perWorker = 8, 500

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				acc.Record("f", strconv.Itoa(w*perWorker+i), mask.LowUnicode)
				acc.Record(RaggedName(1+i%3), "v", mask.LowUnicode)
			}
		}()
	}
	wg.Wait()

	rep := acc.Snapshot(0)
	f, ok := rep.Field("f")
	require.True(t, ok)
	require.Len(t, f.Patterns, 1)
	assert.EqualValues(t, workers*perWorker, f.Patterns[0].Count)
	assert.Equal(t, 4, acc.Len())

	seen := map[string]int{}
	for _, fr := range rep.Fields {
		seen[fr.Path]++
	}
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
}

// Every observation of a pattern should end up as the example with equal
// probability, both for direct recording and for shard merges.
func TestReservoir_Uniform(t *testing.T) {
	values := []string{"a", "b", "c", "d", "e", "f"}
	const trials = 30000

	check := func(t *testing.T, hits map[string]int) {
		t.Helper()
		want := float64(trials) / float64(len(values))
		for _, v := range values {
			dev := math.Abs(float64(hits[v])-want) / want
			assert.Lessf(t, dev, 0.06, "value %q picked %d times, want about %.0f", v, hits[v], want)
		}
	}

	t.Run("direct", func(t *testing.T) {
		rnd := seeded(3)
		hits := map[string]int{}
		for range trials {
			acc := NewAccumulator(rnd)
			for _, v := range values {
				acc.Record("f", v, mask.LowUnicode)
			}
			hits[acc.Snapshot(0).Fields[0].Patterns[0].Example]++
		}
		check(t, hits)
	})

	t.Run("merged shards", func(t *testing.T) {
		rnd := seeded(4)
		hits := map[string]int{}
		for range trials {
			acc := NewAccumulator(rnd)
			s1, s2 := acc.NewShard(rnd), acc.NewShard(rnd)
			for _, v := range values[:2] {
				s1.Record("f", v, mask.LowUnicode)
			}
			for _, v := range values[2:] {
				s2.Record("f", v, mask.LowUnicode)
			}
			acc.Merge(s1)
			acc.Merge(s2)
			p := acc.Snapshot(0).Fields[0].Patterns[0]
			require.EqualValues(t, len(values), p.Count)
			hits[p.Example]++
		}
		check(t, hits)
	})
}

func TestMerge_StatsAndNewPatterns(t *testing.T) {
	acc := NewAccumulator(seeded(5))
	acc.Record("a", "1", mask.LowUnicode)
	acc.ObserveRow(2)

	s := acc.NewShard(nil)
	s.Record("a", "x", mask.LowUnicode)
	s.Record("b", "y", mask.LowUnicode)
	s.ObserveRow(2)
	s.ObserveRow(3)
	s.Skip()
	acc.Merge(s)

	rep := acc.Snapshot(0)
	assert.EqualValues(t, 3, rep.Rows)
	assert.EqualValues(t, 1, rep.Skipped)
	if diff := cmp.Diff([]WidthCount{{Fields: 2, Rows: 2}, {Fields: 3, Rows: 1}}, rep.FieldsPerLine); diff != "" {
		t.Fatalf("FieldsPerLine mismatch (-want +got):\n%s", diff)
	}
	a, _ := rep.Field("a")
	assert.Len(t, a.Patterns, 2)
	b, _ := rep.Field("b")
	assert.Equal(t, []PatternCount{{Pattern: "a", Count: 1, Example: "y"}}, b.Patterns)
}

func TestSnapshot_TieBreakAndTruncation(t *testing.T) {
	acc := NewAccumulator(seeded(6))
	acc.Record("f", "b", mask.High)
	acc.Record("f", "B", mask.High)
	acc.Record("g", "the quick brown fox jumps", mask.LowUnicode)

	rep := acc.Snapshot(12)
	f, _ := rep.Field("f")
	assert.Equal(t, "A", f.Patterns[0].Pattern)
	assert.Equal(t, "a", f.Patterns[1].Pattern)

	g, _ := rep.Field("g")
	assert.Equal(t, "the quick...", g.Patterns[0].Example)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 20, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"the quick brown fox", 12, "the quick..."},
		{"supercalifragilistic", 10, "superca..."},
		{"a   b   c   d", 8, "a b c..."},
		{"anything", 0, "anything"},
		{"abcdef", 2, ".."},
		{"ÅÅÅÅ ÅÅÅÅ ÅÅÅÅ", 12, "ÅÅÅÅ ÅÅÅÅ..."},
	}
	for _, tc := range tests {
		if got := Truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

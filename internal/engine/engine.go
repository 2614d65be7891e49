// Package engine runs profiling and enhancement over a materialized batch
// of input lines.
//
// A profiling run moves through NotStarted, HeaderProcessed (tabular only),
// FanOut, Merged and Reported. The header pass is sequential and seeds the
// field registry; fan-out profiles contiguous chunks of records into
// worker-local shards on a bounded pool; the shards are then merged and a
// report is taken.
package engine

import (
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dqprobe/internal/country"
	"dqprobe/internal/logging"
	"dqprobe/internal/mask"
	"dqprobe/internal/metrics"
	"dqprobe/internal/rules"
	"dqprobe/internal/walker"
)

// Config controls one profiling or enhancement run.
type Config struct {
	Format    Format
	Grain     mask.Grain
	PathDepth int
	// CollapseArrayIndices renders JSON array indexes as "[]".
	CollapseArrayIndices bool
	// HeaderRow is the 0-based index of the tabular header line. Lines up to
	// and including it are not profiled.
	HeaderRow int
	Delimiter rune
	// Workers bounds the fan-out pool; zero means GOMAXPROCS.
	Workers int
	// MaxExampleLen truncates report examples; zero keeps them whole.
	MaxExampleLen int
	// ProfileRules records each assertion outcome as a "<path>.Rules.<name>"
	// field.
	ProfileRules bool
}

// DefaultConfig returns the settings used when a caller does not override them.
func DefaultConfig() Config {
	return Config{
		Format:        FormatAuto,
		Grain:         mask.DefaultGrain,
		PathDepth:     walker.DefaultMaxDepth,
		Delimiter:     '|',
		MaxExampleLen: 32,
	}
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) delimiter() rune {
	if c.Delimiter == 0 {
		return '|'
	}
	return c.Delimiter
}

func (c Config) walkOptions() walker.Options {
	return walker.Options{MaxDepth: c.PathDepth, CollapseArrayIndices: c.CollapseArrayIndices}
}

// Engine profiles and enhances batches. It is safe for concurrent use; the
// rule engine's country cache is shared across runs.
type Engine struct {
	log      *zap.Logger
	metrics  metrics.Backend
	rules    *rules.Engine
	rnd      func() float64
	now      func() time.Time
	newRunID func() string
}

// Option configures an Engine built by New.
type Option func(*Engine)

// WithLogger sets the run logger. A nil logger means no logging.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = logging.OrNop(l) }
}

// WithMetrics sets the backend that receives run and stage metrics. nil keeps
// the no-op backend.
func WithMetrics(m metrics.Backend) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithRules replaces the rule engine, e.g. to share a country cache loaded
// from a custom reference table.
func WithRules(r *rules.Engine) Option {
	return func(e *Engine) {
		if r != nil {
			e.rules = r
		}
	}
}

// WithRand sets the reservoir sampling source. It must be safe for
// concurrent use when Workers > 1.
func WithRand(rnd func() float64) Option {
	return func(e *Engine) { e.rnd = rnd }
}

// WithClock sets the clock used for report timestamps and stage durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRunID overrides the report run identifier generator.
func WithRunID(f func() string) Option {
	return func(e *Engine) {
		if f != nil {
			e.newRunID = f
		}
	}
}

// New returns an Engine with a no-op logger and metrics backend, the
// built-in country table and a uuid run ID per report.
//
// When to use: build one Engine per process and reuse it across runs so the
// country lookup cache stays warm.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:      zap.NewNop(),
		metrics:  metrics.Nop{},
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if e.rules == nil {
		e.rules = rules.New(country.NewCache(nil), rules.WithClock(e.now))
	}
	return e
}

// Rules exposes the rule engine used for assertions.
func (e *Engine) Rules() *rules.Engine { return e.rules }

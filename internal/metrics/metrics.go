// Package metrics is the backend-neutral metrics surface used by the
// profiler. Concrete backends live in subpackages.
package metrics

import "sync"

// Metric names emitted by the profiler.
const (
	// RecordsTotal counts records by kind: processed, skipped, ragged.
	RecordsTotal = "dq_records_total"
	// StageTotal counts orchestrator stage completions by stage and status.
	StageTotal = "dq_stage_total"
	// StageDuration observes stage wall time in seconds by stage and status.
	StageDuration = "dq_stage_duration_seconds"
	// LookupTotal counts country lookup cache results: hit, miss.
	LookupTotal = "dq_lookup_total"
	// FieldsTotal counts fields discovered per run.
	FieldsTotal = "dq_fields_total"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use and should ignore names they do not know.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels) {}
func (Nop) ObserveHistogram(string, float64, Labels) {}

// Recorder keeps every event in memory. Useful in tests and for printing a
// run summary.
type Recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters: make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

// IncCounter adds delta to the counter keyed by name and labels.
func (r *Recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	r.counters[Key(name, labels)] += delta
	r.mu.Unlock()
}

// ObserveHistogram appends value to the samples keyed by name and labels.
func (r *Recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	k := Key(name, labels)
	r.samples[k] = append(r.samples[k], value)
	r.mu.Unlock()
}

// Counter returns the accumulated value of a counter series.
func (r *Recorder) Counter(name string, labels Labels) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[Key(name, labels)]
}

// Samples returns a copy of the observations of a histogram series.
func (r *Recorder) Samples(name string, labels Labels) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.samples[Key(name, labels)]...)
}

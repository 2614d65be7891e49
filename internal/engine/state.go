package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"dqprobe/internal/metrics"
)

// ErrIllegalTransition reports a stage sequencing bug.
var ErrIllegalTransition = errors.New("engine: illegal state transition")

// State is the lifecycle position of one profiling run.
type State uint8

const (
	NotStarted State = iota
	HeaderProcessed
	FanOut
	Merged
	Reported
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case HeaderProcessed:
		return "header"
	case FanOut:
		return "fanout"
	case Merged:
		return "merge"
	case Reported:
		return "report"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// HeaderProcessed is only entered for tabular input.
var transitions = map[State][]State{
	NotStarted:      {HeaderProcessed, FanOut},
	HeaderProcessed: {FanOut},
	FanOut:          {Merged},
	Merged:          {Reported},
}

// machine enforces the stage order and reports each stage's outcome.
type machine struct {
	state State
	now   func() time.Time
	log   *zap.Logger
	m     metrics.Backend
}

// run executes fn as the work that moves the machine into to. The stage is
// timed and counted whether fn succeeds or not; the state only advances on
// success.
func (sm *machine) run(to State, fn func() error) error {
	if !slices.Contains(transitions[sm.state], to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, sm.state, to)
	}

	start := sm.now()
	err := fn()
	elapsed := sm.now().Sub(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	labels := metrics.Labels{"stage": to.String(), "status": status}
	sm.m.IncCounter(metrics.StageTotal, 1, labels)
	sm.m.ObserveHistogram(metrics.StageDuration, elapsed.Seconds(), labels)

	if err != nil {
		sm.log.Warn("stage failed", zap.Stringer("stage", to), zap.Duration("duration", elapsed), zap.Error(err))
		return err
	}
	sm.log.Info("stage done", zap.Stringer("stage", to), zap.Duration("duration", elapsed))
	sm.state = to
	return nil
}

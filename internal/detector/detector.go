// Package detector turns per-frame metrics into exercise phases and
// repetition events.
package detector

import (
	"fmt"
	"time"

	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/metrics"
	"github.com/ayusman/repcount/internal/pose"
)

// Detector defines the interface for exercise repetition detectors.
type Detector interface {
	// ProcessPose evaluates one frame and its derived metrics.
	// It never fails; problems are reported in Effects.Warnings.
	ProcessPose(frame pose.Frame, b metrics.Bundle) Effects

	// Reset clears counters and returns to NOT_VISIBLE.
	Reset()

	// Phase returns the current phase.
	Phase() exercise.Phase

	// Stats returns the repetition counters.
	Stats() Stats

	// Timers returns a copy of the per-phase timers.
	Timers() map[exercise.Phase]Timer

	// Config returns the configuration the detector was built with.
	Config() exercise.Config
}

// Stats holds the repetition counters.
type Stats struct {
	TotalAttempts int `json:"total_attempts"`
	ValidReps     int `json:"valid_reps"`
	InvalidReps   int `json:"invalid_reps"`
}

// Timer records when a phase was entered and, once it has been left, how long it lasted.
// Duration is zero while the phase is active.
type Timer struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}

// Transition is a phase change that happened during a tick.
type Transition struct {
	From exercise.Phase `json:"from"`
	To   exercise.Phase `json:"to"`
}

// RepEvent is raised once per valid completed repetition.
type RepEvent struct {
	Count    int                `json:"count"`
	Attempt  int                `json:"attempt"`
	Extremes map[string]float64 `json:"extremes"`
	// Phase durations in seconds.
	DownDuration float64 `json:"down_duration"`
	UpDuration   float64 `json:"up_duration"`
}

// Effects is everything a tick produced.
type Effects struct {
	Phase      exercise.Phase     `json:"phase"`
	Transition *Transition        `json:"transition,omitempty"`
	Feedback   exercise.Feedback  `json:"feedback"`
	Hint       *exercise.Feedback `json:"hint,omitempty"`
	Rep        *RepEvent          `json:"rep,omitempty"`
	Stats      Stats              `json:"stats"`
	Primary    *float64           `json:"primary,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// Option configures a detector.
type Option func(*machine)

// WithClock sets the time source used for frames without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(m *machine) {
		m.clock = clock
	}
}

// New builds the detector matching cfg.Kind. The configuration is validated first.
func New(cfg exercise.Config, opts ...Option) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := newMachine(cfg.Clone(), opts...)
	switch cfg.Kind {
	case exercise.KindPushUp:
		return &PushUp{machine: m}, nil
	case exercise.KindSquat:
		return &Squat{machine: m}, nil
	case exercise.KindGeneric:
		return &Generic{machine: m}, nil
	}
	return nil, fmt.Errorf("no detector for kind %q", cfg.Kind)
}

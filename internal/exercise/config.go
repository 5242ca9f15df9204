// Package exercise describes exercises declaratively: which landmarks must be
// visible, what each phase says to the user and which thresholds drive the
// repetition state machine.
package exercise

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/ayusman/repcount/internal/metrics"
	"github.com/ayusman/repcount/internal/pose"
)

// ErrInvalidConfig is matched by every configuration validation error.
var ErrInvalidConfig = errors.New("invalid exercise config")

// Phase is a named state of the repetition state machine.
type Phase string

const (
	NotVisible Phase = "NOT_VISIBLE"
	NotReady   Phase = "NOT_READY"
	Ready      Phase = "READY"
	Down       Phase = "DOWN"
	Up         Phase = "UP"
	Partial    Phase = "PARTIAL"
)

// Phases lists every phase in state machine order.
var Phases = []Phase{NotVisible, NotReady, Ready, Down, Up, Partial}

// FeedbackType categorizes a feedback message for display.
type FeedbackType string

const (
	FeedbackError   FeedbackType = "error"
	FeedbackAssume  FeedbackType = "assume"
	FeedbackSuccess FeedbackType = "success"
	FeedbackPhase   FeedbackType = "phase"
	FeedbackWarning FeedbackType = "warning"
)

func (t FeedbackType) valid() bool {
	switch t {
	case FeedbackError, FeedbackAssume, FeedbackSuccess, FeedbackPhase, FeedbackWarning:
		return true
	}
	return false
}

// Kind selects the detector implementation for an exercise.
type Kind string

const (
	KindPushUp  Kind = "pushup"
	KindSquat   Kind = "squat"
	KindGeneric Kind = "generic"
)

// Extreme selects whether a key metric records its minimum or maximum during a rep.
type Extreme string

const (
	ExtremeMin Extreme = "min"
	ExtremeMax Extreme = "max"
)

// Feedback is a message surfaced to the user.
type Feedback struct {
	Message string       `toml:"message" json:"message"`
	Type    FeedbackType `toml:"type" json:"type"`
}

// PhaseConfig holds the per-phase display settings.
type PhaseConfig struct {
	Label    string   `toml:"label" json:"label,omitempty"`
	Feedback Feedback `toml:"feedback" json:"feedback"`
}

// Thresholds drive the phase transitions. Angles are in degrees.
type Thresholds struct {
	// PrimaryMetric is the metric key that drives transitions, e.g. "elbow.avg".
	PrimaryMetric string `toml:"primary_metric" json:"primary_metric"`
	// Top is the fully extended angle; exceeding it means READY, reaching it again completes a rep.
	Top float64 `toml:"top" json:"top"`
	// Descent is the angle below which a descending movement starts a rep.
	Descent float64 `toml:"descent" json:"descent"`
	// Bottom is the angle the rep must reach to count as deep enough.
	Bottom float64 `toml:"bottom" json:"bottom"`
	// Window is the number of unanimous deltas required to trust a direction.
	Window int `toml:"window" json:"window"`
	// MinDelta is the per-frame change in degrees that counts as movement.
	MinDelta float64 `toml:"min_delta" json:"min_delta"`
}

// Condition bounds a metric for the positional gate. Either bound may be omitted.
type Condition struct {
	Metric string   `toml:"metric" json:"metric"`
	Min    *float64 `toml:"min" json:"min,omitempty"`
	Max    *float64 `toml:"max" json:"max,omitempty"`
}

// Holds reports whether v lies within the condition's bounds.
func (c Condition) Holds(v float64) bool {
	if c.Min != nil && v < *c.Min {
		return false
	}
	if c.Max != nil && v > *c.Max {
		return false
	}
	return true
}

// KeyMetric is recorded during the down phase and reported with the rep.
type KeyMetric struct {
	Metric  string  `toml:"metric" json:"metric"`
	Extreme Extreme `toml:"extreme" json:"extreme"`
}

// Config is the immutable description of one exercise.
type Config struct {
	Name              string                `toml:"name" json:"name"`
	Title             string                `toml:"title" json:"title"`
	Kind              Kind                  `toml:"kind" json:"kind"`
	RequiredLandmarks []int                 `toml:"required_landmarks" json:"required_landmarks"`
	Phases            map[Phase]PhaseConfig `toml:"phases" json:"phases"`
	Thresholds        Thresholds            `toml:"thresholds" json:"thresholds"`
	Conditions        []Condition           `toml:"conditions" json:"conditions"`
	KeyMetrics        []KeyMetric           `toml:"key_metrics" json:"key_metrics"`
}

// ConfigError reports every problem found in a configuration.
type ConfigError struct {
	Exercise string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %q: %v", ErrInvalidConfig, e.Exercise, e.Err)
}

// Is makes errors.Is(err, ErrInvalidConfig) match.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Problems returns the individual validation errors.
func (e *ConfigError) Problems() []error {
	return multierr.Errors(e.Err)
}

// Validate checks the configuration and returns a *ConfigError listing every problem.
func (c Config) Validate() error {
	var err error

	if strings.TrimSpace(c.Name) == "" {
		err = multierr.Append(err, errors.New("name is required"))
	}

	switch c.Kind {
	case KindPushUp, KindSquat, KindGeneric:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown kind %q", c.Kind))
	}

	if len(c.RequiredLandmarks) == 0 {
		err = multierr.Append(err, errors.New("required_landmarks must not be empty"))
	}
	for _, idx := range c.RequiredLandmarks {
		if idx < 0 || idx >= pose.NumLandmarks {
			err = multierr.Append(err, fmt.Errorf("required landmark %d out of range [0, %d)", idx, pose.NumLandmarks))
		}
	}

	if len(c.Phases) == 0 {
		err = multierr.Append(err, errors.New("phases must not be empty"))
	} else {
		for _, p := range Phases {
			pc, ok := c.Phases[p]
			if !ok {
				err = multierr.Append(err, fmt.Errorf("phase %s is missing", p))
				continue
			}
			if strings.TrimSpace(pc.Feedback.Message) == "" {
				err = multierr.Append(err, fmt.Errorf("phase %s has no feedback message", p))
			}
			if !pc.Feedback.Type.valid() {
				err = multierr.Append(err, fmt.Errorf("phase %s has unknown feedback type %q", p, pc.Feedback.Type))
			}
		}
		for p := range c.Phases {
			if !knownPhase(p) {
				err = multierr.Append(err, fmt.Errorf("unknown phase %q", p))
			}
		}
	}

	err = multierr.Append(err, c.Thresholds.validate())

	for i, cond := range c.Conditions {
		if !metrics.Known(cond.Metric) {
			err = multierr.Append(err, fmt.Errorf("condition %d: unknown metric %q", i, cond.Metric))
		}
		if cond.Min == nil && cond.Max == nil {
			err = multierr.Append(err, fmt.Errorf("condition %d: min or max is required", i))
		}
		if cond.Min != nil && cond.Max != nil && *cond.Min > *cond.Max {
			err = multierr.Append(err, fmt.Errorf("condition %d: min %g exceeds max %g", i, *cond.Min, *cond.Max))
		}
	}

	for i, km := range c.KeyMetrics {
		if !metrics.Known(km.Metric) {
			err = multierr.Append(err, fmt.Errorf("key metric %d: unknown metric %q", i, km.Metric))
		}
		if km.Extreme != ExtremeMin && km.Extreme != ExtremeMax {
			err = multierr.Append(err, fmt.Errorf("key metric %d: extreme must be min or max, got %q", i, km.Extreme))
		}
	}

	if err != nil {
		return &ConfigError{Exercise: c.Name, Err: err}
	}
	return nil
}

func (t Thresholds) validate() error {
	var err error
	if !metrics.Known(t.PrimaryMetric) {
		err = multierr.Append(err, fmt.Errorf("unknown primary metric %q", t.PrimaryMetric))
	}
	if t.Bottom >= t.Descent {
		err = multierr.Append(err, fmt.Errorf("bottom %g must be below descent %g", t.Bottom, t.Descent))
	}
	if t.Descent > t.Top {
		err = multierr.Append(err, fmt.Errorf("descent %g must not exceed top %g", t.Descent, t.Top))
	}
	if t.Top > 180 || t.Bottom < 0 {
		err = multierr.Append(err, errors.New("angle thresholds must lie in [0, 180]"))
	}
	if t.Window < 1 {
		err = multierr.Append(err, fmt.Errorf("window must be at least 1, got %d", t.Window))
	}
	if t.MinDelta < 0 {
		err = multierr.Append(err, fmt.Errorf("min_delta must not be negative, got %g", t.MinDelta))
	}
	return err
}

func knownPhase(p Phase) bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Feedback returns the configured feedback for phase p.
func (c Config) Feedback(p Phase) Feedback {
	return c.Phases[p].Feedback
}

// MetricKeys returns every metric key the configuration references, sorted.
func (c Config) MetricKeys() []string {
	seen := map[string]bool{c.Thresholds.PrimaryMetric: true}
	for _, cond := range c.Conditions {
		seen[cond.Metric] = true
	}
	for _, km := range c.KeyMetrics {
		seen[km.Metric] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy so callers cannot mutate shared configuration.
func (c Config) Clone() Config {
	out := c
	out.RequiredLandmarks = append([]int(nil), c.RequiredLandmarks...)
	if c.Phases != nil {
		out.Phases = make(map[Phase]PhaseConfig, len(c.Phases))
		for k, v := range c.Phases {
			out.Phases[k] = v
		}
	}
	out.Conditions = make([]Condition, len(c.Conditions))
	for i, cond := range c.Conditions {
		out.Conditions[i] = Condition{Metric: cond.Metric, Min: copyFloat(cond.Min), Max: copyFloat(cond.Max)}
	}
	out.KeyMetrics = append([]KeyMetric(nil), c.KeyMetrics...)
	return out
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

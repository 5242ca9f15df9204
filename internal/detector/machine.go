package detector

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/metrics"
	"github.com/ayusman/repcount/internal/motion"
	"github.com/ayusman/repcount/internal/pose"
)

// values are the resolved metrics a configuration references for one tick.
type values map[string]*float64

func (v values) get(key string) (float64, bool) {
	p := v[key]
	if p == nil {
		return 0, false
	}
	return *p, true
}

// hinter returns an optional coaching hint for the phase after a tick.
type hinter func(phase exercise.Phase, v values) *exercise.Feedback

// machine is the phase state machine shared by every detector.
type machine struct {
	cfg     exercise.Config
	keys    []string
	tracker *motion.Tracker
	clock   func() time.Time

	phase    exercise.Phase
	timers   map[exercise.Phase]Timer
	stats    Stats
	extremes map[string]float64
	// deepest primary angle of the current attempt
	deepest       *float64
	partialMarked bool
}

func newMachine(cfg exercise.Config, opts ...Option) *machine {
	m := &machine{
		cfg:     cfg,
		keys:    cfg.MetricKeys(),
		tracker: motion.NewTracker(cfg.Thresholds.Window, cfg.Thresholds.MinDelta),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Reset()
	return m
}

func (m *machine) Reset() {
	m.tracker.Reset()
	m.phase = exercise.NotVisible
	m.timers = make(map[exercise.Phase]Timer)
	m.stats = Stats{}
	m.extremes = make(map[string]float64)
	m.deepest = nil
	m.partialMarked = false
}

func (m *machine) Phase() exercise.Phase {
	return m.phase
}

func (m *machine) Stats() Stats {
	return m.stats
}

func (m *machine) Timers() map[exercise.Phase]Timer {
	out := make(map[exercise.Phase]Timer, len(m.timers))
	for p, t := range m.timers {
		out[p] = t
	}
	return out
}

func (m *machine) Config() exercise.Config {
	return m.cfg.Clone()
}

// now prefers the frame timestamp (milliseconds) so replayed recordings keep
// their original pacing.
func (m *machine) now(frame pose.Frame) time.Time {
	if frame.Timestamp > 0 {
		return time.UnixMilli(frame.Timestamp)
	}
	return m.clock()
}

// resolve looks up every referenced metric. Keys the bundle does not know are
// returned as warnings; fatal is set when one of them is the primary metric or
// feeds a positional condition, since the gates cannot be evaluated without it.
func (m *machine) resolve(b metrics.Bundle) (v values, warnings []string, fatal bool) {
	v = make(values, len(m.keys))
	for _, key := range m.keys {
		val, known := b.Lookup(key)
		if !known {
			warnings = append(warnings, fmt.Sprintf("metric %q missing from bundle", key))
			fatal = fatal || m.gates(key)
			continue
		}
		v[key] = val
	}
	return v, warnings, fatal
}

// gates reports whether key drives the phase gates.
func (m *machine) gates(key string) bool {
	if key == m.cfg.Thresholds.PrimaryMetric {
		return true
	}
	for _, c := range m.cfg.Conditions {
		if c.Metric == key {
			return true
		}
	}
	return false
}

func (m *machine) process(frame pose.Frame, b metrics.Bundle, hint hinter) Effects {
	v, warnings, fatal := m.resolve(b)
	for _, w := range warnings {
		log.WithField("exercise", m.cfg.Name).Warn(w)
	}
	// the tick is rejected before anything mutates
	if fatal {
		return Effects{
			Phase:    m.phase,
			Feedback: m.cfg.Feedback(m.phase),
			Stats:    m.stats,
			Warnings: warnings,
		}
	}

	now := m.now(frame)
	th := m.cfg.Thresholds
	primary := v[th.PrimaryMetric]
	eff := Effects{Primary: primary, Warnings: warnings}

	if _, ok := m.timers[m.phase]; !ok {
		m.timers[m.phase] = Timer{Start: now}
	}
	// The tracker sees every visible sample, gated or not
	if primary != nil {
		m.tracker.Update(*primary)
	}

	// Visibility gate, then positional gate, then the transition table
	switch {
	case !frame.AllInView(m.cfg.RequiredLandmarks) || primary == nil:
		m.enter(exercise.NotVisible, now, &eff)
	case !m.positioned(v):
		m.enter(exercise.NotReady, now, &eff)
	default:
		m.advance(*primary, v, now, &eff)
	}

	eff.Phase = m.phase
	eff.Feedback = m.cfg.Feedback(m.phase)
	eff.Stats = m.stats
	if hint != nil {
		eff.Hint = hint(m.phase, v)
	}
	return eff
}

// positioned reports whether every positional condition holds. A condition
// whose metric is nil does not hold.
func (m *machine) positioned(v values) bool {
	for _, c := range m.cfg.Conditions {
		val, ok := v.get(c.Metric)
		if !ok || !c.Holds(val) {
			return false
		}
	}
	return true
}

// advance applies the transition table for primary angle a.
func (m *machine) advance(a float64, v values, now time.Time, eff *Effects) {
	th := m.cfg.Thresholds
	dir := m.tracker.Direction()

	switch m.phase {
	case exercise.NotVisible, exercise.NotReady:
		if a > th.Top {
			m.enter(exercise.Ready, now, eff)
		}

	case exercise.Ready:
		if dir == motion.Descending && a < th.Descent {
			m.startAttempt()
			m.enter(exercise.Down, now, eff)
			m.record(a, v)
		}

	case exercise.Down:
		m.record(a, v)
		if dir == motion.Ascending {
			// deep enough: the way up counts
			if m.deepest != nil && *m.deepest <= th.Bottom {
				m.enter(exercise.Up, now, eff)
			} else {
				if !m.partialMarked {
					m.stats.InvalidReps++
					m.partialMarked = true
				}
				m.enter(exercise.Partial, now, eff)
			}
		}

	case exercise.Up:
		if a >= th.Top {
			m.enter(exercise.Ready, now, eff)
			m.stats.ValidReps++
			eff.Rep = m.repEvent()
		} else if dir == motion.Descending {
			// went back down before the top: same attempt
			m.enter(exercise.Down, now, eff)
			m.record(a, v)
		}

	case exercise.Partial:
		if a >= th.Top {
			m.enter(exercise.Ready, now, eff)
		} else if dir == motion.Descending && a < th.Bottom {
			m.enter(exercise.Down, now, eff)
			m.record(a, v)
		}
	}
}

// enter switches phase, closing the timer of the phase being left.
func (m *machine) enter(p exercise.Phase, now time.Time, eff *Effects) {
	if p == m.phase {
		return
	}

	if t, ok := m.timers[m.phase]; ok {
		t.Duration = now.Sub(t.Start)
		m.timers[m.phase] = t
	}
	m.timers[p] = Timer{Start: now}

	eff.Transition = &Transition{From: m.phase, To: p}
	log.WithFields(log.Fields{
		"exercise": m.cfg.Name,
		"from":     m.phase,
		"to":       p,
	}).Debug("phase transition")
	m.phase = p
}

// startAttempt counts a new attempt and clears what the last one recorded.
func (m *machine) startAttempt() {
	m.stats.TotalAttempts++
	m.extremes = make(map[string]float64)
	m.deepest = nil
	m.partialMarked = false
}

// record tightens the extremes of the current attempt.
func (m *machine) record(a float64, v values) {
	if m.deepest == nil || a < *m.deepest {
		deepest := a
		m.deepest = &deepest
	}

	for _, km := range m.cfg.KeyMetrics {
		val, ok := v.get(km.Metric)
		if !ok {
			continue
		}
		cur, seen := m.extremes[km.Metric]
		switch {
		case !seen,
			km.Extreme == exercise.ExtremeMin && val < cur,
			km.Extreme == exercise.ExtremeMax && val > cur:
			m.extremes[km.Metric] = val
		}
	}
}

// repEvent snapshots the attempt that just completed.
func (m *machine) repEvent() *RepEvent {
	extremes := make(map[string]float64, len(m.extremes))
	for k, val := range m.extremes {
		extremes[k] = val
	}
	return &RepEvent{
		Count:        m.stats.ValidReps,
		Attempt:      m.stats.TotalAttempts,
		Extremes:     extremes,
		DownDuration: m.timers[exercise.Down].Duration.Seconds(),
		UpDuration:   m.timers[exercise.Up].Duration.Seconds(),
	}
}

// Package telemetry exposes Prometheus metrics for the rep counting pipeline.
package telemetry

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ayusman/repcount/internal/detector"
	"github.com/ayusman/repcount/internal/exercise"
)

// Manager holds every collector of the pipeline. Collectors are registered
// on the registerer passed to NewManager.
type Manager struct {
	// counters
	CounterFrames      prometheus.Counter
	CounterGated       *prometheus.CounterVec
	CounterTransitions *prometheus.CounterVec
	CounterReps        *prometheus.CounterVec
	CounterWarnings    prometheus.Counter
	CounterFeedErrors  prometheus.Counter
	CounterRequests    *prometheus.CounterVec

	// gauges
	GaugeSubscribers prometheus.Gauge

	// histograms
	HistPhaseDuration *prometheus.HistogramVec
	HistTickDuration  prometheus.Histogram
}

// NewTestManager returns a Manager on a private registry.
func NewTestManager() *Manager {
	return NewManager("repcount", "test", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("repcount", "test", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_processed",
			Help:      "The total number of pose frames evaluated",
		}),
		CounterGated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_gated",
			Help:      "Frames stopped by the visibility or positional gate",
		}, []string{"phase"}),
		CounterTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_transitions",
			Help:      "The total number of phase transitions",
		}, []string{"from", "to"}),
		CounterReps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reps",
			Help:      "Repetitions by exercise and result",
		}, []string{"exercise", "result"}),
		CounterWarnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_warnings",
			Help:      "Ticks that referenced metrics missing from the bundle",
		}),
		CounterFeedErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feed_parse_errors",
			Help:      "Feed records skipped because they could not be decoded",
		}),
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request",
			Help:      "The total number of incoming API requests",
		}, []string{"method", "status"}),
		GaugeSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "event_subscribers",
			Help:      "Current number of connected event subscribers",
		}),
		HistPhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rep_phase_duration_seconds",
			Help:      "Duration of the down and up phases of valid repetitions",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10},
		}, []string{"phase"}),
		HistTickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Time spent computing metrics and advancing the detector",
			Buckets: []float64{
				0.000001, 0.0000025, 0.000005, 0.00001, 0.000025,
				0.00005, 0.0001, 0.001, 0.01, 0.1,
			},
		}),
	}
}

// ObserveTick records the outcome of one detector evaluation.
func (m *Manager) ObserveTick(exerciseName string, eff detector.Effects, took time.Duration) {
	m.CounterFrames.Inc()
	m.HistTickDuration.Observe(took.Seconds())

	if len(eff.Warnings) > 0 {
		m.CounterWarnings.Inc()
	}

	// Gated frames never reach the transition table
	switch eff.Phase {
	case exercise.NotVisible, exercise.NotReady:
		m.CounterGated.WithLabelValues(strings.ToLower(string(eff.Phase))).Inc()
	}

	if t := eff.Transition; t != nil {
		m.CounterTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
		if t.To == exercise.Partial && t.From == exercise.Down {
			m.CounterReps.WithLabelValues(exerciseName, "partial").Inc()
		}
	}

	// Valid reps also feed the phase duration histogram
	if rep := eff.Rep; rep != nil {
		m.CounterReps.WithLabelValues(exerciseName, "valid").Inc()
		m.HistPhaseDuration.WithLabelValues("down").Observe(rep.DownDuration)
		m.HistPhaseDuration.WithLabelValues("up").Observe(rep.UpDuration)
	}
}

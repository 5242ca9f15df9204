// Package app ties the exercise catalog, the detectors and the landmark feed
// together into a rep counting session.
package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/repcount/internal/detector"
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/metrics"
	"github.com/ayusman/repcount/internal/pose"
	"github.com/ayusman/repcount/internal/store"
	"github.com/ayusman/repcount/internal/telemetry"
)

// SubscriberBuffer is the number of events queued per subscriber before
// events are dropped for it.
const SubscriberBuffer = 64

// Config holds configuration options for a session.
type Config struct {
	Catalog     *exercise.Catalog
	Store       *store.Store
	Telemetry   *telemetry.Manager
	ExerciseDir string
	// Exercise is used when no selection has been remembered.
	Exercise string
	// MaxFPS caps the rate at which Run pulls frames. Zero disables pacing.
	MaxFPS int

	DetectorOptions []detector.Option
}

// Event is what subscribers receive after every tick.
type Event struct {
	Exercise string `json:"exercise"`
	// Seq is the number of frames processed when the event was produced.
	// Subscribers receive events in Seq order.
	Seq uint64 `json:"seq"`
	detector.Effects
}

// Snapshot describes the current state of a session.
type Snapshot struct {
	Exercise string                            `json:"exercise"`
	Title    string                            `json:"title"`
	Phase    exercise.Phase                    `json:"phase"`
	Feedback exercise.Feedback                 `json:"feedback"`
	Stats    detector.Stats                    `json:"stats"`
	Timers   map[exercise.Phase]detector.Timer `json:"timers"`
	Frames   uint64                            `json:"frames"`
	Uptime   string                            `json:"uptime"`
}

// Session owns the active detector and serializes every access to it.
type Session struct {
	config  Config
	catalog *exercise.Catalog

	mu       sync.Mutex
	detector detector.Detector
	frames   uint64
	started  time.Time

	subMu  sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// New creates a session, loads the exercise catalog and selects the
// remembered exercise, falling back to config.Exercise and then the push-up.
func New(config Config) (*Session, error) {
	if config.Catalog == nil {
		config.Catalog = exercise.NewCatalog()
	}

	s := &Session{
		config:  config,
		catalog: config.Catalog,
		started: time.Now(),
		subs:    make(map[int]chan Event),
	}

	if err := s.LoadExercises(); err != nil {
		return nil, err
	}

	for _, name := range s.candidates() {
		if _, err := s.catalog.Get(name); err != nil {
			log.WithField("exercise", name).Warn("exercise not in catalog, trying next")
			continue
		}
		if err := s.selectLocked(name, false); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: no usable exercise", exercise.ErrUnknownExercise)
}

func (s *Session) candidates() []string {
	var names []string
	if s.config.Store != nil {
		if name, err := s.config.Store.Settings().Get(store.SettingCurrentExercise); err == nil {
			names = append(names, name)
		} else if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).Warn("failed to read remembered exercise")
		}
	}
	if s.config.Exercise != "" {
		names = append(names, s.config.Exercise)
	}
	return append(names, exercise.PushUp().Name)
}

// LoadExercises discovers exercise definitions in the configured directory and
// then applies the calibrated overrides kept in the store.
func (s *Session) LoadExercises() error {
	if s.config.ExerciseDir != "" {
		n, err := s.catalog.Discover(s.config.ExerciseDir)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"dir": s.config.ExerciseDir, "count": n}).Info("discovered exercises")
	}

	if s.config.Store == nil {
		return nil
	}

	stored, err := s.config.Store.Exercises().List()
	if err != nil {
		return fmt.Errorf("load stored exercises: %w", err)
	}
	for _, e := range stored {
		if err := s.catalog.Register(e.Config, exercise.SourceStore); err != nil {
			log.WithError(err).WithField("exercise", e.Config.Name).Warn("skipping invalid stored exercise")
		}
	}
	log.WithField("count", len(stored)).Info("loaded stored exercises")
	return nil
}

// Catalog returns the exercise catalog.
func (s *Session) Catalog() *exercise.Catalog {
	return s.catalog
}

// Store returns the configuration store, or nil when running without one.
func (s *Session) Store() *store.Store {
	return s.config.Store
}

// Telemetry returns the metrics manager, or nil.
func (s *Session) Telemetry() *telemetry.Manager {
	return s.config.Telemetry
}

// Process runs one tick: metrics are computed for frame, the detector
// evaluates them and the result is published to subscribers.
func (s *Session) Process(frame pose.Frame) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	bundle := metrics.Calculate(frame)
	eff := s.detector.ProcessPose(frame, bundle)
	took := time.Since(start)
	s.frames++
	ev := Event{Exercise: s.detector.Config().Name, Seq: s.frames, Effects: eff}

	if s.config.Telemetry != nil {
		s.config.Telemetry.ObserveTick(ev.Exercise, eff, took)
	}
	if eff.Rep != nil {
		log.WithFields(log.Fields{
			"exercise": ev.Exercise,
			"count":    eff.Rep.Count,
			"down":     eff.Rep.DownDuration,
			"up":       eff.Rep.UpDuration,
		}).Info("rep completed")
	}

	// published under the lock so subscribers see ticks in order
	s.publish(ev)
	return ev
}

// Reset clears the counters of the current exercise.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detector.Reset()
	snap := s.snapshotLocked()
	log.WithField("exercise", snap.Exercise).Info("session reset")
	s.publish(s.stateEventLocked())
	return snap
}

// SelectExercise replaces the detector with a fresh one for name and
// remembers the choice in the store.
func (s *Session) SelectExercise(name string) (Snapshot, error) {
	s.mu.Lock()
	if err := s.selectLocked(name, true); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	snap := s.snapshotLocked()
	s.publish(s.stateEventLocked())
	s.mu.Unlock()
	return snap, nil
}

func (s *Session) selectLocked(name string, remember bool) error {
	cfg, err := s.catalog.Get(name)
	if err != nil {
		return err
	}
	d, err := detector.New(cfg, s.config.DetectorOptions...)
	if err != nil {
		return fmt.Errorf("build detector for %s: %w", name, err)
	}
	s.detector = d

	if remember && s.config.Store != nil {
		if err := s.config.Store.Settings().Set(store.SettingCurrentExercise, name); err != nil {
			log.WithError(err).Warn("failed to remember selected exercise")
		}
	}
	log.WithFields(log.Fields{"exercise": name, "kind": cfg.Kind}).Info("exercise selected")
	return nil
}

// ApplyExercise registers cfg in the catalog. If cfg is the active exercise
// the detector is rebuilt with the new configuration.
func (s *Session) ApplyExercise(cfg exercise.Config) error {
	if err := s.catalog.Register(cfg, exercise.SourceStore); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detector.Config().Name != cfg.Name {
		return nil
	}
	return s.selectLocked(cfg.Name, false)
}

// ForgetExercise removes a stored exercise from the catalog. A built-in or
// discovered definition of the same name comes back in its place. When the active exercise disappears
// the session falls back to its default.
func (s *Session) ForgetExercise(name string) error {
	s.catalog.Remove(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detector.Config().Name != name {
		return nil
	}
	if _, err := s.catalog.Get(name); err == nil {
		return s.selectLocked(name, false)
	}
	for _, fallback := range s.candidates() {
		if fallback == name {
			continue
		}
		if _, err := s.catalog.Get(fallback); err == nil {
			return s.selectLocked(fallback, true)
		}
	}
	return fmt.Errorf("%w: no fallback for %s", exercise.ErrUnknownExercise, name)
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	cfg := s.detector.Config()
	phase := s.detector.Phase()
	return Snapshot{
		Exercise: cfg.Name,
		Title:    cfg.Title,
		Phase:    phase,
		Feedback: cfg.Feedback(phase),
		Stats:    s.detector.Stats(),
		Timers:   s.detector.Timers(),
		Frames:   s.frames,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
}

func (s *Session) stateEventLocked() Event {
	cfg := s.detector.Config()
	phase := s.detector.Phase()
	return Event{
		Exercise: cfg.Name,
		Seq:      s.frames,
		Effects: detector.Effects{
			Phase:    phase,
			Feedback: cfg.Feedback(phase),
			Stats:    s.detector.Stats(),
		},
	}
}

// Subscribe registers a listener for tick events. The returned function
// unsubscribes and closes the channel. Slow subscribers miss events.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, SubscriberBuffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	count := len(s.subs)
	s.subMu.Unlock()

	if s.config.Telemetry != nil {
		s.config.Telemetry.GaugeSubscribers.Set(float64(count))
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			count := len(s.subs)
			s.subMu.Unlock()

			if s.config.Telemetry != nil {
				s.config.Telemetry.GaugeSubscribers.Set(float64(count))
			}
		})
	}
}

func (s *Session) publish(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			log.WithField("subscriber", id).Debug("subscriber too slow, dropping event")
		}
	}
}

package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/feed"
	"github.com/ayusman/repcount/internal/pose"
	"github.com/ayusman/repcount/internal/store"
	"github.com/ayusman/repcount/internal/telemetry"
)

var oneRep = []float64{170, 170, 170, 150, 130, 110, 95, 110, 130, 150, 170, 170}

// fastCatalog registers a push-up that trusts a single frame of movement.
func fastCatalog(t *testing.T) *exercise.Catalog {
	t.Helper()
	c := exercise.NewCatalog()
	cfg := exercise.PushUp()
	cfg.Thresholds.Window = 1
	require.NoError(t, c.Register(cfg, exercise.SourceStore))
	return c
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	if cfg.Catalog == nil {
		cfg.Catalog = fastCatalog(t)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestSession_DefaultsToPushUp(t *testing.T) {
	s := newSession(t, Config{})

	snap := s.Snapshot()
	assert.Equal(t, "pushup", snap.Exercise)
	assert.Equal(t, exercise.NotVisible, snap.Phase)
	assert.Equal(t, exercise.FeedbackError, snap.Feedback.Type)
	assert.Zero(t, snap.Frames)
}

func TestSession_UnknownDefaultFallsBack(t *testing.T) {
	s := newSession(t, Config{Exercise: "handstand"})
	assert.Equal(t, "pushup", s.Snapshot().Exercise)

	s = newSession(t, Config{Exercise: "squat"})
	assert.Equal(t, "squat", s.Snapshot().Exercise)
}

func TestSession_ProcessCountsRep(t *testing.T) {
	m, reg := telemetry.NewTestManagerAndRegistry()
	s := newSession(t, Config{Telemetry: m})

	var reps int
	for i, a := range oneRep {
		f := pose.PushUpPose(a)
		f.Timestamp = int64(i+1) * 100
		ev := s.Process(f)
		assert.Equal(t, "pushup", ev.Exercise)
		if ev.Rep != nil {
			reps++
			assert.Equal(t, 1, ev.Rep.Count)
		}
	}
	assert.Equal(t, 1, reps)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Stats.ValidReps)
	assert.Equal(t, uint64(len(oneRep)), snap.Frames)
	assert.Equal(t, exercise.Ready, snap.Phase)

	assert.Equal(t, float64(len(oneRep)), testutil.ToFloat64(m.CounterFrames))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterReps.WithLabelValues("pushup", "valid")))
	n, err := testutil.GatherAndCount(reg, "repcount_test_rep_phase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSession_Reset(t *testing.T) {
	s := newSession(t, Config{})
	for _, a := range oneRep {
		s.Process(pose.PushUpPose(a))
	}
	require.Equal(t, 1, s.Snapshot().Stats.ValidReps)

	snap := s.Reset()
	assert.Zero(t, snap.Stats.ValidReps)
	assert.Zero(t, snap.Stats.TotalAttempts)
	assert.Equal(t, exercise.NotVisible, snap.Phase)
}

func TestSession_SelectExercise(t *testing.T) {
	st := newTestStore(t)
	s := newSession(t, Config{Store: st})

	snap, err := s.SelectExercise("squat")
	require.NoError(t, err)
	assert.Equal(t, "squat", snap.Exercise)
	assert.Equal(t, "Squats", snap.Title)

	remembered, err := st.Settings().Get(store.SettingCurrentExercise)
	require.NoError(t, err)
	assert.Equal(t, "squat", remembered)

	_, err = s.SelectExercise("handstand")
	assert.ErrorIs(t, err, exercise.ErrUnknownExercise)
	assert.Equal(t, "squat", s.Snapshot().Exercise)

	// a new session picks up the remembered choice
	again := newSession(t, Config{Store: st})
	assert.Equal(t, "squat", again.Snapshot().Exercise)
}

func TestSession_SelectDiscardsCounters(t *testing.T) {
	s := newSession(t, Config{})
	for _, a := range oneRep {
		s.Process(pose.PushUpPose(a))
	}

	_, err := s.SelectExercise("pushup")
	require.NoError(t, err)
	assert.Zero(t, s.Snapshot().Stats.ValidReps)
}

func TestSession_LoadExercises(t *testing.T) {
	dir := t.TempDir()
	lunge := exercise.Squat()
	lunge.Name = "lunge"
	lunge.Title = "Lunges"

	f, err := os.Create(filepath.Join(dir, "lunge.toml"))
	require.NoError(t, err)
	require.NoError(t, toml.NewEncoder(f).Encode(lunge))
	require.NoError(t, f.Close())

	st := newTestStore(t)
	calibrated := exercise.PushUp()
	calibrated.Thresholds.Bottom = 90
	require.NoError(t, st.Exercises().Create(&store.Exercise{Config: calibrated}))
	deepLunge := lunge
	deepLunge.Thresholds.Bottom = 70
	require.NoError(t, st.Exercises().Create(&store.Exercise{Config: deepLunge}))

	s := newSession(t, Config{Store: st, ExerciseDir: dir, Catalog: exercise.NewCatalog()})

	cfg, err := s.Catalog().Get("lunge")
	require.NoError(t, err)
	assert.Equal(t, "Lunges", cfg.Title)
	assert.Equal(t, 70.0, cfg.Thresholds.Bottom, "stored calibration wins over the file")

	cfg, err = s.Catalog().Get("pushup")
	require.NoError(t, err)
	assert.Equal(t, 90.0, cfg.Thresholds.Bottom)

	// forgetting the calibration brings the file definition back
	_, err = s.SelectExercise("lunge")
	require.NoError(t, err)
	require.NoError(t, s.ForgetExercise("lunge"))
	assert.Equal(t, "lunge", s.Snapshot().Exercise)
	cfg, err = s.Catalog().Get("lunge")
	require.NoError(t, err)
	assert.Equal(t, lunge.Thresholds.Bottom, cfg.Thresholds.Bottom)
}

func TestSession_ApplyAndForgetExercise(t *testing.T) {
	s := newSession(t, Config{Catalog: exercise.NewCatalog()})

	calibrated := exercise.PushUp()
	calibrated.Thresholds.Bottom = 90
	require.NoError(t, s.ApplyExercise(calibrated))
	assert.Equal(t, 90.0, s.detector.Config().Thresholds.Bottom)

	// built-ins come back after their override is forgotten
	require.NoError(t, s.ForgetExercise("pushup"))
	assert.Equal(t, 100.0, s.detector.Config().Thresholds.Bottom)

	plank := exercise.PushUp()
	plank.Name = "plank"
	plank.Kind = exercise.KindGeneric
	require.NoError(t, s.ApplyExercise(plank))
	_, err := s.SelectExercise("plank")
	require.NoError(t, err)

	require.NoError(t, s.ForgetExercise("plank"))
	assert.Equal(t, "pushup", s.Snapshot().Exercise)

	broken := exercise.PushUp()
	broken.Phases = nil
	assert.ErrorIs(t, s.ApplyExercise(broken), exercise.ErrInvalidConfig)
}

func TestSession_Subscribe(t *testing.T) {
	m := telemetry.NewTestManager()
	s := newSession(t, Config{Telemetry: m})

	events, unsubscribe := s.Subscribe()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GaugeSubscribers))

	s.Process(pose.PushUpPose(170))
	select {
	case ev := <-events:
		assert.Equal(t, exercise.Ready, ev.Phase)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	s.Reset()
	select {
	case ev := <-events:
		assert.Equal(t, exercise.NotVisible, ev.Phase)
	case <-time.After(time.Second):
		t.Fatal("no reset event received")
	}

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.GaugeSubscribers))

	// publishing without subscribers must not block
	s.Process(pose.PushUpPose(170))
}

func TestSession_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := newSession(t, Config{})
	_, unsubscribe := s.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < SubscriberBuffer*2; i++ {
			s.Process(pose.PushUpPose(170))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Process blocked on a full subscriber")
	}
}

func TestSession_Run(t *testing.T) {
	s := newSession(t, Config{})
	src := feed.FromAngles(pose.PushUpPose, 100, oneRep...)

	require.NoError(t, s.Run(context.Background(), src))
	assert.Equal(t, 1, s.Snapshot().Stats.ValidReps)
	assert.Equal(t, uint64(len(oneRep)), s.Snapshot().Frames)
}

func TestSession_RunPacedAndCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}

	s := newSession(t, Config{MaxFPS: 20})
	src := feed.FromAngles(pose.PushUpPose, 100, oneRep...).Loop()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, src)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 20 fps for 300ms allows about 6 frames
	frames := s.Snapshot().Frames
	assert.GreaterOrEqual(t, frames, uint64(2))
	assert.LessOrEqual(t, frames, uint64(10))
}

func TestSession_RunSourceError(t *testing.T) {
	s := newSession(t, Config{})
	src := feed.NewScript()
	src.Close()

	assert.ErrorIs(t, s.Run(context.Background(), src), feed.ErrClosed)
}

func TestSession_RunSkipsMalformedFrames(t *testing.T) {
	m := telemetry.NewTestManager()
	s := newSession(t, Config{Telemetry: m})

	var lines []string
	for i, a := range oneRep {
		f := pose.PushUpPose(a)
		f.Timestamp = int64(i+1) * 100
		data, err := json.Marshal(f)
		require.NoError(t, err)
		lines = append(lines, string(data))
		if i == 2 {
			// the estimator died mid-write
			lines = append(lines, string(data[:len(data)/2]))
		}
	}
	src := feed.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))

	require.NoError(t, s.Run(context.Background(), src))
	snap := s.Snapshot()
	assert.Equal(t, uint64(len(oneRep)), snap.Frames)
	assert.Equal(t, 1, snap.Stats.ValidReps)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterFeedErrors))
}

func TestSession_EventsArriveInTickOrder(t *testing.T) {
	s := newSession(t, Config{})
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	const workers, perWorker = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Process(pose.PushUpPose(170))
			}
		}()
	}
	wg.Wait()

	var last uint64
	for i := 0; i < workers*perWorker; i++ {
		select {
		case ev := <-events:
			require.Equal(t, last+1, ev.Seq, "event %d out of order", i)
			last = ev.Seq
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d events", i, workers*perWorker)
		}
	}
}

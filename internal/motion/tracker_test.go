package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// feedDeltas drives the tracker so that its buffer holds exactly the given deltas.
func feedDeltas(tr *Tracker, start float64, deltas []float64) {
	angle := start
	tr.Update(angle)
	for _, d := range deltas {
		angle += d
		tr.Update(angle)
	}
}

func TestNewTracker(t *testing.T) {
	tests := []struct {
		name         string
		window       int
		minDelta     float64
		wantWindow   int
		wantMinDelta float64
	}{
		{"explicit", 3, 1.5, 3, 1.5},
		{"zero window falls back", 0, 0.5, DefaultWindow, 0.5},
		{"negative threshold falls back", 4, -1, 4, DefaultMinDelta},
		{"zero threshold kept", 2, 0, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(tt.window, tt.minDelta)
			assert.Equal(t, tt.wantWindow, tr.window)
			assert.Equal(t, tt.wantMinDelta, tr.minDelta)
			assert.Empty(t, tr.Deltas())
		})
	}
}

func TestTracker_FirstSampleIsBaseline(t *testing.T) {
	tr := NewTracker(5, 0.3)
	tr.Update(170)

	assert.Empty(t, tr.Deltas())
	prev, ok := tr.Previous()
	assert.True(t, ok)
	assert.Equal(t, 170.0, prev)
}

func TestTracker_UnanimousWindow(t *testing.T) {
	tests := []struct {
		name       string
		deltas     []float64
		descending bool
		ascending  bool
	}{
		{"one outlier blocks descent", []float64{-1, -1, -1, -1, 0.1}, false, false},
		{"full negative window", []float64{-1, -1, -1, -1, -1}, true, false},
		{"full positive window", []float64{1, 1, 1, 1, 1}, false, true},
		{"short window", []float64{-1, -1, -1, -1}, false, false},
		{"delta below threshold is not movement", []float64{-1, -1, -0.25, -1, -1}, false, false},
		{"mixed", []float64{1, -1, 1, -1, 1}, false, false},
		{"old deltas are evicted", []float64{5, 5, -1, -1, -1, -1, -1}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(5, 0.3)
			feedDeltas(tr, 100, tt.deltas)

			assert.Equal(t, tt.descending, tr.Descending())
			assert.Equal(t, tt.ascending, tr.Ascending())
			assert.LessOrEqual(t, len(tr.Deltas()), 5)
		})
	}
}

func TestTracker_Direction(t *testing.T) {
	tr := NewTracker(2, 0.3)
	assert.Equal(t, Still, tr.Direction())

	feedDeltas(tr, 170, []float64{-10, -10})
	assert.Equal(t, Descending, tr.Direction())
	assert.Equal(t, "descending", tr.Direction().String())

	tr.Update(160)
	assert.Equal(t, Still, tr.Direction())

	tr.Update(170)
	assert.Equal(t, Ascending, tr.Direction())
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(2, 0.3)
	feedDeltas(tr, 170, []float64{-10, -10})
	assert.True(t, tr.Descending())

	tr.Reset()

	assert.False(t, tr.Descending())
	assert.Empty(t, tr.Deltas())
	_, ok := tr.Previous()
	assert.False(t, ok)

	// the next sample is a fresh baseline
	tr.Update(50)
	assert.Empty(t, tr.Deltas())
}

func TestTracker_SetThreshold(t *testing.T) {
	tr := NewTracker(1, 0.3)
	tr.SetThreshold(5)
	feedDeltas(tr, 100, []float64{-2})
	assert.False(t, tr.Descending())

	tr.SetThreshold(-1)
	assert.Equal(t, 5.0, tr.minDelta)

	tr.SetThreshold(1)
	assert.True(t, tr.Descending())
}

// Package motion classifies the direction of a joint angle over time.
package motion

// Defaults used when a tracker is built from an incomplete configuration.
const (
	// DefaultWindow is the number of consecutive deltas that must agree.
	DefaultWindow = 5
	// DefaultMinDelta is the minimum change in degrees per frame that counts as movement.
	DefaultMinDelta = 0.3
)

// Direction is the classified movement of the tracked angle.
type Direction int

const (
	Still Direction = iota
	Descending
	Ascending
)

// String returns a lowercase name for the direction.
func (d Direction) String() string {
	switch d {
	case Descending:
		return "descending"
	case Ascending:
		return "ascending"
	default:
		return "still"
	}
}

// Tracker keeps a fixed-size window of frame-to-frame angle deltas.
//
// A direction is only reported once every delta in a full window agrees with it,
// which rejects single-frame jitter from the pose estimator.
//
// Tracker is not safe for concurrent use.
type Tracker struct {
	window   int
	minDelta float64
	deltas   []float64
	prev     float64
	hasPrev  bool
}

// NewTracker creates a Tracker with the given window size and per-frame threshold.
// A non-positive window or a negative threshold falls back to the default.
// A zero threshold is kept: any movement then counts.
func NewTracker(window int, minDelta float64) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if minDelta < 0 {
		minDelta = DefaultMinDelta
	}
	return &Tracker{
		window:   window,
		minDelta: minDelta,
		deltas:   make([]float64, 0, window),
	}
}

// Update records a new angle sample. The first sample only sets the baseline.
func (t *Tracker) Update(angle float64) {
	if t.hasPrev {
		if len(t.deltas) >= t.window {
			// Shift left by 1, removing the oldest delta
			copy(t.deltas, t.deltas[1:])
			t.deltas = t.deltas[:t.window-1]
		}
		t.deltas = append(t.deltas, angle-t.prev)
	}
	t.prev = angle
	t.hasPrev = true
}

// Descending reports whether every delta in a full window is below -minDelta.
func (t *Tracker) Descending() bool {
	if len(t.deltas) < t.window {
		return false
	}
	for _, d := range t.deltas {
		if d >= -t.minDelta {
			return false
		}
	}
	return true
}

// Ascending reports whether every delta in a full window is above minDelta.
func (t *Tracker) Ascending() bool {
	if len(t.deltas) < t.window {
		return false
	}
	for _, d := range t.deltas {
		if d <= t.minDelta {
			return false
		}
	}
	return true
}

// Direction returns the current classification.
func (t *Tracker) Direction() Direction {
	switch {
	case t.Descending():
		return Descending
	case t.Ascending():
		return Ascending
	default:
		return Still
	}
}

// Previous returns the last recorded angle and whether one exists.
func (t *Tracker) Previous() (float64, bool) {
	return t.prev, t.hasPrev
}

// Deltas returns a copy of the buffered deltas, oldest first.
func (t *Tracker) Deltas() []float64 {
	out := make([]float64, len(t.deltas))
	copy(out, t.deltas)
	return out
}

// Window returns the configured window size.
func (t *Tracker) Window() int {
	return t.window
}

// Reset clears the buffered deltas and the baseline angle.
func (t *Tracker) Reset() {
	t.deltas = t.deltas[:0]
	t.prev = 0
	t.hasPrev = false
}

// SetThreshold sets the minimum per-frame delta.
// Negative values are ignored.
func (t *Tracker) SetThreshold(minDelta float64) {
	if minDelta < 0 {
		return
	}
	t.minDelta = minDelta
}

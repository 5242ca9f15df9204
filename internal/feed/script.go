package feed

import (
	"context"
	"io"
	"sync"

	"github.com/ayusman/repcount/internal/pose"
)

// Script is a Source that replays frames held in memory.
type Script struct {
	mu     sync.Mutex
	frames []pose.Frame
	pos    int
	loop   bool
	closed bool
}

// NewScript creates a Script that yields frames in order, then io.EOF.
func NewScript(frames ...pose.Frame) *Script {
	return &Script{frames: frames}
}

// FromAngles builds a Script by rendering each angle with pose, e.g.
// pose.PushUpPose. Frames are stamped intervalMs apart starting at intervalMs.
func FromAngles(render func(float64) pose.Frame, intervalMs int64, angles ...float64) *Script {
	frames := make([]pose.Frame, len(angles))
	for i, a := range angles {
		frames[i] = render(a)
		frames[i].Timestamp = int64(i+1) * intervalMs
	}
	return NewScript(frames...)
}

// Loop makes the script restart from the beginning instead of ending.
// Timestamps keep increasing across iterations.
func (s *Script) Loop() *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = true
	return s
}

// Add appends frames to the script.
func (s *Script) Add(frames ...pose.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frames...)
}

// Next returns the next scripted frame.
func (s *Script) Next(ctx context.Context) (pose.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pose.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pose.Frame{}, ErrClosed
	}
	if len(s.frames) == 0 {
		return pose.Frame{}, io.EOF
	}
	if s.pos >= len(s.frames) {
		if !s.loop {
			return pose.Frame{}, io.EOF
		}
	}

	round := int64(s.pos / len(s.frames))
	frame := s.frames[s.pos%len(s.frames)]
	s.pos++

	if round > 0 && frame.Timestamp > 0 {
		span := s.frames[len(s.frames)-1].Timestamp
		frame.Timestamp += round * span
	}
	return frame, nil
}

// Remaining reports how many frames are left before io.EOF.
// Looping scripts always report the full length.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop {
		return len(s.frames)
	}
	return len(s.frames) - s.pos
}

// Close marks the script closed.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

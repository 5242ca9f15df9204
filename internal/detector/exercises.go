package detector

import (
	"github.com/ayusman/repcount/internal/exercise"
	"github.com/ayusman/repcount/internal/metrics"
	"github.com/ayusman/repcount/internal/pose"
)

// PushUp detects push-ups on the average elbow angle.
type PushUp struct {
	*machine
}

func (d *PushUp) ProcessPose(frame pose.Frame, b metrics.Bundle) Effects {
	return d.process(frame, b, d.hint)
}

func (d *PushUp) hint(phase exercise.Phase, v values) *exercise.Feedback {
	if phase != exercise.Partial {
		return nil
	}
	return &exercise.Feedback{Message: "Elbows not bent enough", Type: exercise.FeedbackWarning}
}

// Squat detects squats on the average knee angle.
type Squat struct {
	*machine
}

func (d *Squat) ProcessPose(frame pose.Frame, b metrics.Bundle) Effects {
	return d.process(frame, b, d.hint)
}

func (d *Squat) hint(phase exercise.Phase, v values) *exercise.Feedback {
	switch phase {
	case exercise.Partial:
		return &exercise.Feedback{Message: "Go deeper", Type: exercise.FeedbackWarning}
	case exercise.Down, exercise.Up:
		// torso folding over the thighs
		if hip, ok := v.get("hip.avg"); ok && hip < 45 {
			return &exercise.Feedback{Message: "Keep your chest up", Type: exercise.FeedbackWarning}
		}
	}
	return nil
}

// Generic runs the state machine purely from its configuration.
type Generic struct {
	*machine
}

func (d *Generic) ProcessPose(frame pose.Frame, b metrics.Bundle) Effects {
	return d.process(frame, b, nil)
}

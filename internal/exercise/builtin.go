package exercise

import "github.com/ayusman/repcount/internal/pose"

func bound(v float64) *float64 { return &v }

// PushUp returns the built-in push-up configuration.
func PushUp() Config {
	return Config{
		Name:  "pushup",
		Title: "Push-Ups",
		Kind:  KindPushUp,
		RequiredLandmarks: []int{
			pose.LeftShoulder, pose.RightShoulder,
			pose.LeftElbow, pose.RightElbow,
			pose.LeftWrist, pose.RightWrist,
			pose.LeftHip, pose.RightHip,
			pose.LeftAnkle, pose.RightAnkle,
		},
		Phases: map[Phase]PhaseConfig{
			NotVisible: {Feedback: Feedback{
				Message: "Adjust 📸 camera, 🧍 body positioning or 💡 lighting so shoulders, arms, hips and ankles are in view",
				Type:    FeedbackError,
			}},
			NotReady: {Feedback: Feedback{Message: "🏋️ Assume push-up position", Type: FeedbackAssume}},
			Ready:    {Feedback: Feedback{Message: "💪 Ready to push", Type: FeedbackSuccess}},
			Down:     {Feedback: Feedback{Message: "⬇️ Down phase detected", Type: FeedbackPhase}},
			Up:       {Feedback: Feedback{Message: "⬆️ Up phase detected", Type: FeedbackPhase}},
			Partial:  {Feedback: Feedback{Message: "Partial rep", Type: FeedbackWarning}},
		},
		Thresholds: Thresholds{
			// elbow angle is 180 with straight arms
			PrimaryMetric: "elbow.avg",
			Top:           160,
			Descent:       155,
			Bottom:        100,
			Window:        5,
			MinDelta:      0.3,
		},
		Conditions: []Condition{
			// straight back: shoulder, hip and ankle in line
			{Metric: "back.avg", Min: bound(150)},
			// hands on the floor, roughly under the shoulders
			{Metric: "depth.wrist.avg", Max: bound(0.13)},
		},
		KeyMetrics: []KeyMetric{
			{Metric: "elbow.left", Extreme: ExtremeMin},
			{Metric: "elbow.right", Extreme: ExtremeMin},
			{Metric: "back.avg", Extreme: ExtremeMin},
			{Metric: "depth.wrist.avg", Extreme: ExtremeMin},
		},
	}
}

// Squat returns the built-in squat configuration.
func Squat() Config {
	return Config{
		Name:  "squat",
		Title: "Squats",
		Kind:  KindSquat,
		RequiredLandmarks: []int{
			pose.LeftShoulder, pose.RightShoulder,
			pose.LeftHip, pose.RightHip,
			pose.LeftKnee, pose.RightKnee,
			pose.LeftAnkle, pose.RightAnkle,
		},
		Phases: map[Phase]PhaseConfig{
			NotVisible: {Feedback: Feedback{
				Message: "Adjust 📸 camera so shoulders, hips, knees and ankles are in view",
				Type:    FeedbackError,
			}},
			NotReady: {Feedback: Feedback{Message: "🧍 Stand tall with your chest up", Type: FeedbackAssume}},
			Ready:    {Feedback: Feedback{Message: "🦵 Ready to squat", Type: FeedbackSuccess}},
			Down:     {Feedback: Feedback{Message: "⬇️ Down phase detected", Type: FeedbackPhase}},
			Up:       {Feedback: Feedback{Message: "⬆️ Up phase detected", Type: FeedbackPhase}},
			Partial:  {Feedback: Feedback{Message: "Partial rep", Type: FeedbackWarning}},
		},
		Thresholds: Thresholds{
			// knee angle is 180 when standing
			PrimaryMetric: "knee.avg",
			Top:           160,
			Descent:       150,
			Bottom:        100,
			Window:        3,
			MinDelta:      0.5,
		},
		Conditions: []Condition{
			// shoulders stay above the hips
			{Metric: "depth.shoulder.avg", Max: bound(-0.05)},
		},
		KeyMetrics: []KeyMetric{
			{Metric: "hip.avg", Extreme: ExtremeMin},
			{Metric: "depth.hip.avg", Extreme: ExtremeMax},
		},
	}
}

// Builtins returns fresh copies of every built-in exercise.
func Builtins() []Config {
	return []Config{PushUp(), Squat()}
}

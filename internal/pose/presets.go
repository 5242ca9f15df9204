package pose

import "math"

// PushUpPose returns a side-view push-up frame whose elbow angle equals
// elbowAngle degrees on both sides. The torso and legs form a straight line and
// the forearm is short enough to keep the wrist depth inside the usual push-up range.
func PushUpPose(elbowAngle float64) Frame {
	f := NewFrame()
	f.Set(Nose, Landmark{X: 0.22, Y: 0.48, Visibility: 0.99})

	rad := elbowAngle * math.Pi / 180
	const forearm = 0.12

	shoulder := Landmark{X: 0.30, Y: 0.50, Visibility: 0.98}
	elbow := Landmark{X: 0.30, Y: 0.62, Visibility: 0.97}
	wrist := Landmark{
		X:          elbow.X + forearm*math.Sin(rad),
		Y:          elbow.Y - forearm*math.Cos(rad),
		Visibility: 0.96,
	}
	hip := Landmark{X: 0.55, Y: 0.50, Visibility: 0.95}
	knee := Landmark{X: 0.70, Y: 0.50, Visibility: 0.94}
	ankle := Landmark{X: 0.85, Y: 0.50, Visibility: 0.93}

	for _, s := range []Side{Left, Right} {
		f.SetJoint(Shoulder, s, shoulder)
		f.SetJoint(Elbow, s, elbow)
		f.SetJoint(Wrist, s, wrist)
		f.SetJoint(Hip, s, hip)
		f.SetJoint(Knee, s, knee)
		f.SetJoint(Ankle, s, ankle)
	}
	return f
}

// SquatPose returns a side-view squat frame whose knee angle equals kneeAngle
// degrees on both sides. The shin is vertical and the torso stays upright above
// the hips.
func SquatPose(kneeAngle float64) Frame {
	f := NewFrame()

	rad := kneeAngle * math.Pi / 180
	const thigh = 0.2

	ankle := Landmark{X: 0.50, Y: 0.90, Visibility: 0.97}
	knee := Landmark{X: 0.50, Y: 0.70, Visibility: 0.97}
	hip := Landmark{
		X:          knee.X + thigh*math.Sin(rad),
		Y:          knee.Y + thigh*math.Cos(rad),
		Visibility: 0.96,
	}
	shoulder := Landmark{X: hip.X - 0.05, Y: hip.Y - 0.25, Visibility: 0.98}
	elbow := Landmark{X: shoulder.X + 0.10, Y: shoulder.Y + 0.05, Visibility: 0.95}
	wrist := Landmark{X: elbow.X + 0.10, Y: elbow.Y, Visibility: 0.94}

	f.Set(Nose, Landmark{X: shoulder.X, Y: shoulder.Y - 0.1, Visibility: 0.99})
	for _, s := range []Side{Left, Right} {
		f.SetJoint(Shoulder, s, shoulder)
		f.SetJoint(Elbow, s, elbow)
		f.SetJoint(Wrist, s, wrist)
		f.SetJoint(Hip, s, hip)
		f.SetJoint(Knee, s, knee)
		f.SetJoint(Ankle, s, ankle)
	}
	return f
}

// Occlude returns a copy of f with the given landmarks removed.
func Occlude(f Frame, indices ...int) Frame {
	out := Frame{Timestamp: f.Timestamp, Landmarks: make([]*Landmark, len(f.Landmarks))}
	copy(out.Landmarks, f.Landmarks)
	for _, i := range indices {
		if i >= 0 && i < len(out.Landmarks) {
			out.Landmarks[i] = nil
		}
	}
	return out
}

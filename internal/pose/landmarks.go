// Package pose provides body landmark types and the planar geometry used by the
// repetition pipeline.
package pose

// Body landmark indices following the MediaPipe pose convention.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose          = 0
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
	LeftAnkle     = 27
	RightAnkle    = 28
	NumLandmarks  = 33
)

// Side selects the left or right half of the skeleton.
type Side int

const (
	Left Side = iota
	Right
)

// String returns "left" or "right".
func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Joint names a body joint that exists on both sides of the skeleton.
type Joint string

const (
	Shoulder Joint = "shoulder"
	Elbow    Joint = "elbow"
	Wrist    Joint = "wrist"
	Hip      Joint = "hip"
	Knee     Joint = "knee"
	Ankle    Joint = "ankle"
)

var jointIndex = map[Joint][2]int{
	Shoulder: {LeftShoulder, RightShoulder},
	Elbow:    {LeftElbow, RightElbow},
	Wrist:    {LeftWrist, RightWrist},
	Hip:      {LeftHip, RightHip},
	Knee:     {LeftKnee, RightKnee},
	Ankle:    {LeftAnkle, RightAnkle},
}

// Index returns the landmark index of joint j on side s, or -1 for an unknown joint.
func Index(j Joint, s Side) int {
	idx, ok := jointIndex[j]
	if !ok {
		return -1
	}
	return idx[s]
}

// Landmark is a single normalized image-plane point. Z and Visibility are carried
// through from the estimator but ignored by the 2-D pipeline.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility,omitempty"`
}

// Frame is the complete set of landmarks for one sampling tick. Entries may be nil
// when the estimator did not report a point.
type Frame struct {
	Timestamp int64       `json:"timestamp"` // milliseconds
	Landmarks []*Landmark `json:"landmarks"`
}

// At returns landmark i, or nil when it is absent or out of range.
func (f Frame) At(i int) *Landmark {
	if i < 0 || i >= len(f.Landmarks) {
		return nil
	}
	return f.Landmarks[i]
}

// Joint returns the landmark of joint j on side s.
func (f Frame) Joint(j Joint, s Side) *Landmark {
	return f.At(Index(j, s))
}

// AllInView reports whether every listed landmark is present and inside the unit square.
func (f Frame) AllInView(indices []int) bool {
	for _, i := range indices {
		if !InView(f.At(i)) {
			return false
		}
	}
	return true
}

// NewFrame returns an empty frame sized for the full pose topology.
func NewFrame() Frame {
	return Frame{Landmarks: make([]*Landmark, NumLandmarks)}
}

// Set stores a landmark at index i, growing the frame if needed.
func (f *Frame) Set(i int, l Landmark) {
	if i < 0 {
		return
	}
	for len(f.Landmarks) <= i {
		f.Landmarks = append(f.Landmarks, nil)
	}
	f.Landmarks[i] = &l
}

// SetJoint stores a landmark for joint j on side s.
func (f *Frame) SetJoint(j Joint, s Side, l Landmark) {
	f.Set(Index(j, s), l)
}

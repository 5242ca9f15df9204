package pose

import "math"

// AngleBetween returns the angle in degrees at vertex p2 subtended by p1 and p3.
// It is computed as the difference of the two atan2 bearings measured from p2 and
// folded into [0, 180]. The second return value is false when any point is nil.
func AngleBetween(p1, p2, p3 *Landmark) (float64, bool) {
	if p1 == nil || p2 == nil || p3 == nil {
		return 0, false
	}

	radians := math.Atan2(p3.Y-p2.Y, p3.X-p2.X) - math.Atan2(p1.Y-p2.Y, p1.X-p2.X)
	degrees := math.Abs(radians * 180 / math.Pi)

	// Bearing differences span (-360, 360); reflex angles fold back onto the inner one.
	if degrees > 180 {
		degrees = 360 - degrees
	}
	return degrees, true
}

// InView reports whether the landmark exists and both coordinates lie in [0, 1].
func InView(l *Landmark) bool {
	if l == nil {
		return false
	}
	if math.IsNaN(l.X) || math.IsNaN(l.Y) {
		return false
	}
	return l.X >= 0 && l.X <= 1 && l.Y >= 0 && l.Y <= 1
}

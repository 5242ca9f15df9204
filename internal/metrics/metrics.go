// Package metrics derives joint angles and depth measures from a landmark frame.
package metrics

import (
	"sort"
	"strings"

	"github.com/ayusman/repcount/internal/pose"
)

// Sided holds a left value, a right value and their average. A nil entry means
// the value could not be derived from the frame.
type Sided struct {
	Left  *float64 `json:"left"`
	Right *float64 `json:"right"`
	Avg   *float64 `json:"avg"`
}

func newSided(left, right *float64) Sided {
	s := Sided{Left: left, Right: right}
	if left != nil && right != nil {
		avg := (*left + *right) / 2
		s.Avg = &avg
	}
	return s
}

// get returns the component named by part ("left", "right" or "avg").
func (s Sided) get(part string) (*float64, bool) {
	switch part {
	case "left":
		return s.Left, true
	case "right":
		return s.Right, true
	case "avg":
		return s.Avg, true
	}
	return nil, false
}

// Triple is the landmark topology of an angle: the vertex and its two arms.
type Triple struct {
	A, Vertex, B pose.Joint
}

// Pair is the topology of a depth measure: To.y - From.y.
type Pair struct {
	To, From pose.Joint
}

// Angle topology. Keys double as metric names.
var Angles = map[string]Triple{
	"elbow":    {pose.Shoulder, pose.Elbow, pose.Wrist},
	"shoulder": {pose.Elbow, pose.Shoulder, pose.Hip},
	"hip":      {pose.Shoulder, pose.Hip, pose.Knee},
	"knee":     {pose.Hip, pose.Knee, pose.Ankle},
	"back":     {pose.Shoulder, pose.Hip, pose.Ankle},
}

// Depth topology. Metric names are prefixed with "depth.".
var Depths = map[string]Pair{
	"wrist":    {pose.Wrist, pose.Elbow},
	"shoulder": {pose.Shoulder, pose.Hip},
	"hip":      {pose.Hip, pose.Knee},
}

// Bundle is the derived, immutable metric set for one frame.
type Bundle struct {
	Angles map[string]Sided `json:"angles"`
	Depths map[string]Sided `json:"depths"`
}

// Calculate derives every configured angle and depth from the frame. It never
// fails: landmarks that are absent or out of view produce nil values.
func Calculate(frame pose.Frame) Bundle {
	b := Bundle{
		Angles: make(map[string]Sided, len(Angles)),
		Depths: make(map[string]Sided, len(Depths)),
	}

	for name, t := range Angles {
		b.Angles[name] = newSided(
			angleOn(frame, t, pose.Left),
			angleOn(frame, t, pose.Right),
		)
	}

	for name, p := range Depths {
		b.Depths[name] = newSided(
			depthOn(frame, p, pose.Left),
			depthOn(frame, p, pose.Right),
		)
	}

	return b
}

func angleOn(frame pose.Frame, t Triple, s pose.Side) *float64 {
	a := frame.Joint(t.A, s)
	v := frame.Joint(t.Vertex, s)
	b := frame.Joint(t.B, s)
	if !pose.InView(a) || !pose.InView(v) || !pose.InView(b) {
		return nil
	}
	angle, ok := pose.AngleBetween(a, v, b)
	if !ok {
		return nil
	}
	return &angle
}

func depthOn(frame pose.Frame, p Pair, s pose.Side) *float64 {
	to := frame.Joint(p.To, s)
	from := frame.Joint(p.From, s)
	if !pose.InView(to) || !pose.InView(from) {
		return nil
	}
	d := to.Y - from.Y
	return &d
}

// Lookup resolves a metric key such as "elbow.avg" or "depth.wrist.left".
// The value is nil when the metric exists but could not be derived for this
// frame; known is false when the key does not name any metric.
func (b Bundle) Lookup(key string) (value *float64, known bool) {
	parts := strings.Split(key, ".")

	switch {
	case len(parts) == 2:
		s, ok := b.Angles[parts[0]]
		if !ok {
			return nil, false
		}
		return s.get(parts[1])
	case len(parts) == 3 && parts[0] == "depth":
		s, ok := b.Depths[parts[1]]
		if !ok {
			return nil, false
		}
		return s.get(parts[2])
	}
	return nil, false
}

// Known reports whether key names a metric this package can derive.
func Known(key string) bool {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return false
	}
	last := parts[len(parts)-1]
	if last != "left" && last != "right" && last != "avg" {
		return false
	}
	switch {
	case len(parts) == 2:
		_, ok := Angles[parts[0]]
		return ok
	case len(parts) == 3 && parts[0] == "depth":
		_, ok := Depths[parts[1]]
		return ok
	}
	return false
}

// Flatten returns every defined value keyed by metric name.
func (b Bundle) Flatten() map[string]float64 {
	out := make(map[string]float64)
	put := func(prefix string, s Sided) {
		if s.Left != nil {
			out[prefix+".left"] = *s.Left
		}
		if s.Right != nil {
			out[prefix+".right"] = *s.Right
		}
		if s.Avg != nil {
			out[prefix+".avg"] = *s.Avg
		}
	}
	for name, s := range b.Angles {
		put(name, s)
	}
	for name, s := range b.Depths {
		put("depth."+name, s)
	}
	return out
}

// Keys lists every metric key in sorted order.
func Keys() []string {
	var keys []string
	for name := range Angles {
		for _, part := range []string{"left", "right", "avg"} {
			keys = append(keys, name+"."+part)
		}
	}
	for name := range Depths {
		for _, part := range []string{"left", "right", "avg"} {
			keys = append(keys, "depth."+name+"."+part)
		}
	}
	sort.Strings(keys)
	return keys
}

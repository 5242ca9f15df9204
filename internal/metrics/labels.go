package metrics

import (
	"fmt"
	"strings"
)

// Label is the display name and icon for a metric family.
type Label struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Labels maps metric family names to display labels.
var Labels = map[string]Label{
	"elbow":          {Name: "Elbow", Icon: "💪"},
	"shoulder":       {Name: "Shoulder", Icon: "🤷"},
	"hip":            {Name: "Hip", Icon: "🧘"},
	"knee":           {Name: "Knee", Icon: "🦵"},
	"back":           {Name: "Back Straightness", Icon: "📏"},
	"depth.wrist":    {Name: "Wrist Depth", Icon: "⬇️"},
	"depth.shoulder": {Name: "Height Depth", Icon: "🧍"},
	"depth.hip":      {Name: "Hip Depth", Icon: "🪑"},
}

// Describe formats a metric key and value for display, e.g. "Left Elbow: 92°".
func Describe(key string, value *float64) string {
	family, part := splitKey(key)
	label, ok := Labels[family]
	name := key
	if ok {
		name = label.Name
	}

	switch part {
	case "left":
		name = "Left " + name
	case "right":
		name = "Right " + name
	case "avg":
		name = "Avg " + name
	}

	if value == nil {
		return name + ": N/A"
	}
	if strings.HasPrefix(family, "depth.") {
		return fmt.Sprintf("%s: %.3f", name, *value)
	}
	return fmt.Sprintf("%s: %.0f°", name, *value)
}

func splitKey(key string) (family, part string) {
	i := strings.LastIndex(key, ".")
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

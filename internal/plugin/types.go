// Package plugin runs external programs in response to session events,
// e.g. to log completed repetitions or notify a training app.
package plugin

import (
	"encoding/json"

	"github.com/ayusman/repcount/internal/detector"
)

// Events a plugin can subscribe to.
const (
	EventRep      = "rep"
	EventPartial  = "partial"
	EventExercise = "exercise"
)

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is written to the plugin's stdin.
type Request struct {
	Event    string             `json:"event"`
	Exercise string             `json:"exercise"`
	Rep      *detector.RepEvent `json:"rep,omitempty"`
	Stats    detector.Stats     `json:"stats"`
	Config   json.RawMessage    `json:"config,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

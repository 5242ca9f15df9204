// Package main provides a plugin that appends completed and partial
// repetitions to a CSV file.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type rep struct {
	Count        int     `json:"count"`
	Attempt      int     `json:"attempt"`
	DownDuration float64 `json:"down_duration"`
	UpDuration   float64 `json:"up_duration"`
}

type stats struct {
	TotalAttempts int `json:"total_attempts"`
	ValidReps     int `json:"valid_reps"`
}

// Request represents the input from the plugin executor.
type Request struct {
	Event    string          `json:"event"`
	Exercise string          `json:"exercise"`
	Rep      *rep            `json:"rep"`
	Stats    stats           `json:"stats"`
	Config   json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type config struct {
	File string `json:"file"`
}

var header = []string{"time", "event", "exercise", "count", "attempts", "down_seconds", "up_seconds"}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}
	writeResponse(appendRow(req))
}

func appendRow(req Request) error {
	cfg := config{File: "reps.csv"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	// Relative paths resolve against the plugin directory, the executor's working dir
	_, statErr := os.Stat(cfg.File)
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	// Write the header only for a new file
	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		w.Write(header)
	}

	// Partials carry no rep; durations stay empty
	count, down, up := req.Stats.ValidReps, "", ""
	if req.Rep != nil {
		count = req.Rep.Count
		down = strconv.FormatFloat(req.Rep.DownDuration, 'f', 2, 64)
		up = strconv.FormatFloat(req.Rep.UpDuration, 'f', 2, 64)
	}
	w.Write([]string{
		time.Now().Format(time.RFC3339),
		req.Event,
		req.Exercise,
		strconv.Itoa(count),
		strconv.Itoa(req.Stats.TotalAttempts),
		down,
		up,
	})
	w.Flush()
	return w.Error()
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// Package feed provides sources of pose frames: NDJSON streams, external
// pose-estimation processes and in-memory scripts.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/repcount/internal/pose"
)

// ErrClosed is returned when reading from a source that has been closed.
var ErrClosed = errors.New("feed closed")

// Source produces pose frames one at a time.
type Source interface {
	// Next blocks until a frame is available. It returns io.EOF when the
	// source is exhausted and ErrClosed after Close.
	Next(ctx context.Context) (pose.Frame, error)

	// Close releases any resources held by the source.
	Close() error
}

// ParseError reports a record that could not be decoded. The stream itself is
// still usable and the next call to Next continues after the bad line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// decodeLine parses one NDJSON record. Blank lines and lines starting with
// '#' are reported as skip.
func decodeLine(line []byte) (frame pose.Frame, skip bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] == '#' {
		return pose.Frame{}, true, nil
	}
	if err := json.Unmarshal(line, &frame); err != nil {
		return pose.Frame{}, false, fmt.Errorf("parse frame: %w", err)
	}
	return frame, false, nil
}

package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ayusman/repcount/internal/pose"
)

// maxLine bounds a single NDJSON record.
const maxLine = 1 << 20

// Reader reads NDJSON frames from an io.Reader.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
	mu      sync.Mutex
	closed  bool
}

// NewReader creates a Reader over r. If r implements io.Closer it is closed by Close.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLine)

	rd := &Reader{scanner: s}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd
}

// Open opens a recording file. "-" reads standard input.
func Open(path string) (*Reader, error) {
	if path == "-" {
		return NewReader(io.NopCloser(os.Stdin)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return NewReader(f), nil
}

// Next returns the next frame in the stream.
func (r *Reader) Next(ctx context.Context) (pose.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return pose.Frame{}, ErrClosed
	}

	for {
		if err := ctx.Err(); err != nil {
			return pose.Frame{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return pose.Frame{}, fmt.Errorf("read line %d: %w", r.line+1, err)
			}
			return pose.Frame{}, io.EOF
		}
		r.line++

		frame, skip, err := decodeLine(r.scanner.Bytes())
		if err != nil {
			return pose.Frame{}, &ParseError{Line: r.line, Err: err}
		}
		if skip {
			continue
		}
		return frame, nil
	}
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.line
}

// Close closes the underlying reader if it is closable.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/repcount/internal/pose"
)

// result carries one decoded line from the reader goroutine to Next.
type result struct {
	frame pose.Frame
	err   error
}

// Process reads NDJSON frames from the standard output of an external
// pose-estimation command. The command is started lazily on the first Next.
type Process struct {
	name string
	args []string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stderr  io.WriteCloser
	frames  chan result
	done    chan struct{}
	exited  chan struct{}
	started bool
	closed  bool
}

// NewProcess creates a Process that will run name with args.
func NewProcess(name string, args ...string) *Process {
	return &Process{
		name: name,
		args: args,
		done: make(chan struct{}),
	}
}

// Next returns the next frame written by the command.
func (p *Process) Next(ctx context.Context) (pose.Frame, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return pose.Frame{}, ErrClosed
	}
	if err := p.ensureStarted(); err != nil {
		p.mu.Unlock()
		return pose.Frame{}, err
	}
	frames := p.frames
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return pose.Frame{}, ctx.Err()
	case <-p.done:
		return pose.Frame{}, ErrClosed
	case r, ok := <-frames:
		// closed channel: the command exited on its own
		if !ok {
			return pose.Frame{}, io.EOF
		}
		return r.frame, r.err
	}
}

// Close stops the command and waits for it to exit.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	return p.shutdown()
}

func (p *Process) ensureStarted() error {
	if p.started {
		return nil
	}

	cmd := exec.Command(p.name, p.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Forward diagnostics from the estimator into our log
	stderr := log.WithField("feed", p.name).WriterLevel(log.DebugLevel)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stderr.Close()
		return fmt.Errorf("start pose estimator: %w", err)
	}

	p.cmd = cmd
	p.stderr = stderr
	p.frames = make(chan result)
	p.exited = make(chan struct{})
	p.started = true

	log.WithFields(log.Fields{"command": p.name, "pid": cmd.Process.Pid}).Info("pose estimator started")
	go p.readLoop(stdout)
	return nil
}

// readLoop decodes stdout line by line until the command exits or the
// Process is closed. Malformed lines are passed on as *ParseError values.
func (p *Process) readLoop(stdout io.Reader) {
	defer close(p.exited)
	defer close(p.frames)

	s := bufio.NewScanner(stdout)
	s.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for s.Scan() {
		line++
		frame, skip, err := decodeLine(s.Bytes())
		if skip {
			continue
		}
		if err != nil {
			err = &ParseError{Line: line, Err: err}
		}
		select {
		case p.frames <- result{frame: frame, err: err}:
		case <-p.done:
			return
		}
	}
	if err := s.Err(); err != nil {
		select {
		case p.frames <- result{err: fmt.Errorf("read pose estimator: %w", err)}:
		case <-p.done:
		}
	}
}

// shutdown kills the command and reaps it. The caller holds p.mu.
func (p *Process) shutdown() error {
	if !p.started {
		return nil
	}

	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	// Drain the reader before Wait closes the pipe
	<-p.exited
	err := p.cmd.Wait()
	p.stderr.Close()

	p.started = false
	p.cmd = nil

	// a killed process is the expected outcome
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}

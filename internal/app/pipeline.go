package app

import (
	"context"
	"errors"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/repcount/internal/feed"
)

// Run pulls frames from src and processes them until the source is exhausted
// or ctx is cancelled. When MaxFPS is set, frames are pulled no faster than
// that rate. Reaching the end of the source is not an error, and records the
// source cannot decode are logged and skipped.
//
// Pipeline logic:
// 1. Wait for the next frame from the source
// 2. Compute metrics and run the detector
// 3. Publish the effects to subscribers
// 4. Wait for the next tick of the frame-rate ceiling
func (s *Session) Run(ctx context.Context, src feed.Source) error {
	var tick <-chan time.Time
	if s.config.MaxFPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(s.config.MaxFPS))
		defer ticker.Stop()
		tick = ticker.C
	}

	log.WithField("max_fps", s.config.MaxFPS).Info("feed loop started")
	defer log.Info("feed loop stopped")

	var parseErr *feed.ParseError
	for {
		frame, err := src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &parseErr):
			// a truncated record does not end the session
			log.WithError(parseErr.Err).WithField("line", parseErr.Line).Warn("skipping malformed frame")
			if s.config.Telemetry != nil {
				s.config.Telemetry.CounterFeedErrors.Inc()
			}
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		s.Process(frame)

		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
}

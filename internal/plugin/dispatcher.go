package plugin

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/repcount/internal/app"
	"github.com/ayusman/repcount/internal/exercise"
)

// Dispatcher turns session events into plugin requests.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	exercise string
}

// NewDispatcher creates a Dispatcher for the plugins known to m.
func NewDispatcher(m *Manager, e *Executor) *Dispatcher {
	return &Dispatcher{manager: m, executor: e}
}

// Requests maps one session event to the plugin requests it triggers.
func (d *Dispatcher) Requests(ev app.Event) []Request {
	var out []Request
	base := Request{Exercise: ev.Exercise, Stats: ev.Stats}

	// The first event only records the starting exercise
	if d.exercise != "" && d.exercise != ev.Exercise {
		r := base
		r.Event = EventExercise
		out = append(out, r)
	}
	d.exercise = ev.Exercise

	// A shallow attempt turning back up
	if t := ev.Transition; t != nil && t.From == exercise.Down && t.To == exercise.Partial {
		r := base
		r.Event = EventPartial
		out = append(out, r)
	}
	if ev.Rep != nil {
		r := base
		r.Event = EventRep
		r.Rep = ev.Rep
		out = append(out, r)
	}
	return out
}

// Run executes plugins for each event until events is closed or ctx is done.
// Plugins run one at a time; failures are logged.
func (d *Dispatcher) Run(ctx context.Context, events <-chan app.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, req := range d.Requests(ev) {
				d.dispatch(ctx, req)
			}
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) {
	for _, p := range d.manager.Subscribers(req.Event) {
		logger := log.WithFields(log.Fields{"plugin": p.Manifest.Name, "event": req.Event})

		resp, err := d.executor.Execute(ctx, p, req)
		if err != nil {
			logger.WithError(err).Warn("plugin failed")
			continue
		}
		if !resp.Success {
			logger.WithField("error", resp.Error).Warn("plugin reported failure")
			continue
		}
		logger.Debug("plugin executed")
	}
}

// Package devloop rebuilds a workspace whenever its sources change.
package devloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/artpar/trellis/internal/core/watch"
	"github.com/artpar/trellis/internal/shell/console"
)

// DefaultDebounce is the delay between the first change of a burst and the
// rebuild it triggers.
const DefaultDebounce = time.Second

// Rebuild runs one pipeline pass.
type Rebuild func(ctx context.Context) error

// Loop drives rebuilds from a stream of changed paths. It owns all rebuild
// state; producers only send on the events channel.
type Loop struct {
	events   <-chan string
	rebuild  Rebuild
	debounce time.Duration
	coord    watch.Coordinator
	console  *console.Console
	logger   *slog.Logger
}

// NewLoop creates a loop reading changed paths from events.
func NewLoop(events <-chan string, rebuild Rebuild, debounce time.Duration, con *console.Console, logger *slog.Logger) *Loop {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if con == nil {
		con = console.Discard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		events:   events,
		rebuild:  rebuild,
		debounce: debounce,
		console:  con,
		logger:   logger.With("component", "devloop"),
	}
}

// Run performs the initial pass and then rebuilds after each burst of
// changes until ctx is done. A rebuild in flight when ctx ends runs to
// completion before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(l.debounce)
	timer.Stop()
	defer timer.Stop()

	events := l.events
	l.coord.BuildStarted()
	done := l.start(ctx)

	for {
		select {
		case <-ctx.Done():
			if done != nil {
				l.console.Info("waiting for the running build to finish")
				l.finish(<-done)
			}
			l.console.Task("stopping dev mode")
			return nil

		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			l.logger.Debug("change received", "path", path, "phase", l.coord.Phase())
			if l.coord.Changed() == watch.StartTimer {
				timer.Reset(l.debounce)
			}

		case <-timer.C:
			if l.coord.TimerFired() == watch.StartBuild {
				l.console.Task("changes detected, rebuilding")
				done = l.start(ctx)
			}

		case err := <-done:
			done = nil
			l.finish(err)
			if l.coord.BuildDone() == watch.StartTimer {
				timer.Reset(l.debounce)
				continue
			}
			l.console.Info("watching for changes, press Ctrl+C to stop")
		}
	}
}

// start runs a rebuild detached from ctx cancellation.
func (l *Loop) start(ctx context.Context) chan error {
	done := make(chan error, 1)
	go func() {
		started := time.Now()
		err := l.rebuild(context.WithoutCancel(ctx))
		l.logger.Debug("rebuild finished", "duration", time.Since(started), "error", err)
		done <- err
	}()
	return done
}

func (l *Loop) finish(err error) {
	if err != nil {
		l.console.Error("build error: %v", err)
		l.logger.Warn("rebuild failed", "error", err)
	}
}

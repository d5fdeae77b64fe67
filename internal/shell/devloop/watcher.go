package devloop

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/artpar/trellis/internal/core/watch"
	"github.com/artpar/trellis/internal/shell/console"
)

// EventBuffer is the capacity of the changed-path channel.
const EventBuffer = 100

const changeOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watcher reports changed paths under a workspace. The root directory is
// watched on its own; package directories are watched with all their
// subdirectories, including ones created later.
type Watcher struct {
	fs      *fsnotify.Watcher
	root    string
	trees   []string
	matcher *watch.Matcher
	events  chan string
	console *console.Console
	logger  *slog.Logger
}

// NewWatcher starts watching root and the package directories.
func NewWatcher(root string, packages []string, matcher *watch.Matcher, con *console.Console, logger *slog.Logger) (*Watcher, error) {
	if matcher == nil {
		matcher = watch.NewMatcher()
	}
	if con == nil {
		con = console.Discard()
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:      fsw,
		root:    filepath.Clean(root),
		matcher: matcher,
		events:  make(chan string, EventBuffer),
		console: con,
		logger:  logger.With("component", "watcher"),
	}

	if err := fsw.Add(w.root); err != nil {
		fsw.Close()
		return nil, err
	}
	for _, dir := range packages {
		dir = filepath.Clean(dir)
		w.trees = append(w.trees, dir)
		if err := w.addTree(dir); err != nil {
			fsw.Close()
			return nil, err
		}
		w.console.Info("watching %s", dir)
	}
	return w, nil
}

// Events returns the channel of changed paths.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Run forwards relevant filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(changeOps) {
				continue
			}
			if ev.Has(fsnotify.Create) && w.inTree(ev.Name) && !w.matcher.IgnoredDir(w.root, ev.Name) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			if w.matcher.Ignored(w.root, ev.Name) {
				w.logger.Debug("ignoring change", "path", ev.Name, "op", ev.Op.String())
				continue
			}

			w.console.Info("file changed: %s", ev.Name)
			select {
			case w.events <- ev.Name:
			case <-ctx.Done():
				return nil
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// directories can vanish between the event and the walk
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.matcher.IgnoredDir(w.root, path) {
			return filepath.SkipDir
		}
		w.logger.Debug("watching directory", "path", path)
		return w.fs.Add(path)
	})
}

func (w *Watcher) inTree(path string) bool {
	for _, t := range w.trees {
		if path == t || strings.HasPrefix(path, t+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

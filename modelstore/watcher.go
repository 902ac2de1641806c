package modelstore

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Change is a filesystem event on a registered artifact.
type Change struct {
	Name string
	Path string
	Op   fsnotify.Op
}

// Watcher reports artifact changes on disk. The store is never reloaded;
// operators are told to restart instead.
type Watcher struct {
	watcher *fsnotify.Watcher
	paths   map[string]string
	logger  *zap.Logger
	changes chan Change
	done    chan struct{}
}

func Watch(registry Registry, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fw,
		paths:   make(map[string]string, len(registry)),
		logger:  logger,
		changes: make(chan Change, 16),
		done:    make(chan struct{}),
	}

	dirs := make(map[string]struct{})
	for _, e := range registry {
		path := filepath.Clean(e.Path)
		w.paths[path] = e.Name
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			logger.Debug("Artifact directory not present; not watching", zap.String("dir", dir))
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	go w.run()
	return w, nil
}

// Changes delivers matched events. Events are dropped when nobody reads.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.changes)
	const relevant = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name, registered := w.paths[filepath.Clean(ev.Name)]
			if !registered || ev.Op&relevant == 0 {
				continue
			}
			w.logger.Warn("Model artifact changed on disk; restart to load it",
				zap.String("model", name), zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			select {
			case w.changes <- Change{Name: name, Path: ev.Name, Op: ev.Op}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Artifact watcher error", zap.Error(err))
		}
	}
}

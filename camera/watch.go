package camera

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"scanbox/logging"
)

// Watcher announces that a camera provider may have become ready: a video
// node appeared or changed permissions, or new images landed in a replay
// directory. It never retries on its own; it only reports filesystem events.
type Watcher struct {
	fw      *fsnotify.Watcher
	path    string
	dir     bool
	onReady func()
	log     zerolog.Logger
}

// NewWatcher watches path (a device node or an image directory).
func NewWatcher(path string, onReady func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}

	w := &Watcher{
		fw:      fw,
		path:    filepath.Clean(path),
		onReady: onReady,
		log:     logging.WithComponent("camera.watch"),
	}

	watchDir := filepath.Dir(w.path)
	if fi, err := os.Stat(w.path); err == nil && fi.IsDir() {
		w.dir = true
		watchDir = w.path
	}
	if err := fw.Add(watchDir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch %s", watchDir)
	}
	return w, nil
}

// Run dispatches events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("provider change")
				if w.onReady != nil {
					w.onReady()
				}
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Chmod) {
		return false
	}
	if w.dir {
		return true
	}
	return filepath.Clean(ev.Name) == w.path
}

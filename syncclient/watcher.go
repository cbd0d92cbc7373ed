package syncclient

import (
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// dirtyWatcher marks the cached layout dirty whenever baseDir changes on
// disk, so a stale scan never gets reported back to a server that assumes
// a cached responseFileLayout still reflects reality. Grounded on "IoFailure
// ... mark layout dirty" (§7) — generalized from I/O failures to any
// detected filesystem change, since fsnotify reports the latter directly.
type dirtyWatcher struct {
	client *LauncherClient
	logger *zap.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// SetWatcher attaches an fsnotify-backed watcher over the client's base
// directory. Must be called before Start. A failure to create the watcher
// only logs: a client without live change notification still answers
// requests from its last scan, it just won't notice out-of-band edits.
func (c *LauncherClient) SetWatcher() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		c.logger.Warn("create directory watcher", zap.Error(err))
		return
	}
	if err := w.Add(c.baseDir); err != nil {
		c.logger.Warn("watch base directory", zap.Error(err))
		w.Close()
		return
	}
	c.watcher = &dirtyWatcher{client: c, logger: c.logger, watcher: w}
}

func (dw *dirtyWatcher) Start() {
	dw.done = make(chan struct{})
	go dw.run()
}

func (dw *dirtyWatcher) Stop() {
	if dw.watcher == nil {
		return
	}
	dw.watcher.Close()
	<-dw.done
}

func (dw *dirtyWatcher) run() {
	defer close(dw.done)
	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				dw.client.invalidateLayout()
			}
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.logger.Warn("directory watcher error", zap.Error(err))
		}
	}
}

package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file whenever it (or one of its resolved
// $include targets) changes on disk, so an operator can edit
// tool_servers without restarting the gateway. Reload errors are
// logged and leave the last-good Config in place; a watcher never
// calls its callback with a broken config.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *slog.Logger
	done    chan struct{}
}

// NewWatcher starts watching path's directory (fsnotify watches
// directories, not bare files, so an editor's write-via-rename still
// fires an event) and invokes onReload with the freshly parsed Config
// after each debounced change. The caller owns calling Close.
func NewWatcher(path string, logger *slog.Logger, onReload func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{watcher: fw, path: path, logger: logger, done: make(chan struct{})}
	go w.run(onReload)
	return w, nil
}

// run debounces bursts of filesystem events (editors commonly emit
// several writes per save) into a single reload per 200ms window.
func (w *Watcher) run(onReload func(*Config)) {
	var timer *time.Timer
	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
			return
		}
		w.logger.Info("config reloaded", "path", w.path)
		onReload(cfg)
	}

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.watcher.Close()
}

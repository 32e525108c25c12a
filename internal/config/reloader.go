package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Reloader watches a config file and re-reads it on change. Long running
// invocations of the engine pick up switch flips without a restart.
type Reloader struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	logger   *logrus.Logger

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// NewReloader creates a reloader for the given config file. onReload is
// called with each successfully loaded and validated config.
func NewReloader(path string, logger *logrus.Logger, onReload func(*Config)) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are caught.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}
	r := &Reloader{
		path:     path,
		watcher:  watcher,
		onReload: onReload,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

func (r *Reloader) loop() {
	defer close(r.done)
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadConfig(r.path)
			if err != nil {
				r.logger.WithError(err).Warn("Ignoring config change, reload failed")
				continue
			}
			r.logger.WithField("path", r.path).Info("Configuration reloaded")
			r.onReload(cfg)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

// Close stops the watcher.
func (r *Reloader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	err := r.watcher.Close()
	<-r.done
	return err
}

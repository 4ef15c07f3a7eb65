package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk. Editors often
// replace a file instead of writing it, so the parent directory is watched
// and events are filtered by name. Bursts of events within the cooldown
// collapse into one reload.
type Watcher struct {
	path     string
	cooldown time.Duration
	onUpdate func(AppConfig)
	onError  func(error)

	fs       *fsnotify.Watcher
	mu       sync.Mutex
	lastErr  error
	reloads  int
	started  bool
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for path. onUpdate receives every config that
// loads and validates; onError receives the ones that do not.
func NewWatcher(path string, cooldown time.Duration, onUpdate func(AppConfig), onError func(error)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if cooldown <= 0 {
		cooldown = 500 * time.Millisecond
	}
	return &Watcher{
		path:     filepath.Clean(path),
		cooldown: cooldown,
		onUpdate: onUpdate,
		onError:  onError,
		fs:       fs,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start begins watching until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	w.started = true
	go w.watch(ctx)
	return nil
}

// Stop ends the watch goroutine and releases the inotify handle.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.doneChan
	}
	return w.fs.Close()
}

// Health reports the last reload failure, if the newest file is invalid.
func (w *Watcher) Health() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastErr != nil {
		return fmt.Errorf("config %s: %w", w.path, w.lastErr)
	}
	return nil
}

// Reloads returns how many configs were delivered to onUpdate.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Reload loads the file now and delivers the result.
func (w *Watcher) Reload() error {
	cfg, err := LoadWithEnvOverrides(w.path)
	w.mu.Lock()
	w.lastErr = err
	if err == nil {
		w.reloads++
	}
	w.mu.Unlock()
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return err
	}
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneChan)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(w.cooldown)
			}
		case <-pending:
			pending = nil
			_ = w.Reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if w.onError != nil && !errors.Is(err, fsnotify.ErrEventOverflow) {
				w.onError(err)
			}
		}
	}
}

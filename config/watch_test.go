package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type watchRecorder struct {
	mu      sync.Mutex
	updates []AppConfig
	errs    []error
}

func (r *watchRecorder) update(cfg AppConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, cfg)
}

func (r *watchRecorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *watchRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates), len(r.errs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	rec := &watchRecorder{}
	w, err := NewWatcher(path, 10*time.Millisecond, rec.update, rec.fail)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	// a sibling file in the same directory is ignored
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	updated := strings.Replace(sampleConfig, "ocoTrigger: full_fill", "ocoTrigger: any_fill", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	waitFor(t, func() bool { n, _ := rec.counts(); return n >= 1 })

	rec.mu.Lock()
	got := rec.updates[len(rec.updates)-1]
	rec.mu.Unlock()
	if got.Engine.OCOTrigger != "any_fill" {
		t.Fatalf("reload delivered stale config: %+v", got.Engine)
	}
	if w.Health() != nil || w.Reloads() < 1 {
		t.Fatalf("unexpected watcher state: %v %d", w.Health(), w.Reloads())
	}
}

func TestWatcherReportsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	rec := &watchRecorder{}
	w, err := NewWatcher(path, 10*time.Millisecond, rec.update, rec.fail)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	bad := strings.Replace(sampleConfig, "ocoTrigger: full_fill", "ocoTrigger: never", 1)
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	waitFor(t, func() bool { _, n := rec.counts(); return n >= 1 })
	if n, _ := rec.counts(); n != 0 {
		t.Fatalf("invalid config must not be delivered")
	}
	if w.Health() == nil {
		t.Fatalf("expected unhealthy watcher after a bad reload")
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("restore config: %v", err)
	}
	waitFor(t, func() bool { return w.Health() == nil })
}

func TestWatcherStopsWithContext(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	w, err := NewWatcher(path, 0, nil, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	select {
	case <-w.doneChan:
	case <-time.After(time.Second):
		t.Fatalf("watch goroutine did not exit")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := w.Reload(); err != nil {
		t.Fatalf("manual reload: %v", err)
	}
}

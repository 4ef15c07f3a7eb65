// Package alert raises operator alerts for conditions that need a human:
// halted instruments, rejected config reloads, saturated subscribers.
package alert

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Level is the alert severity.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert is one notification.
type Alert struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel delivers alerts somewhere.
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager fans alerts out to its channels. Repeats of the same level and
// message within the throttle interval are dropped.
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// Throttler remembers when each key was last allowed.
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether key may be sent now, and records it if so.
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	lastTime, exists := t.lastSent[key]
	if !exists || now.Sub(lastTime) >= t.interval {
		t.lastSent[key] = now
		return true
	}
	return false
}

func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSent, key)
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// SendAlert delivers alert to every channel. It fails only when every
// channel failed; the error then lists each failure.
func (m *Manager) SendAlert(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if !m.throttle.Allow(throttleKey(alert.Level, alert.Message)) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs error
	delivered := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %s failed: %w", ch.Name(), err))
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return errs
	}
	return nil
}

func (m *Manager) SendInfo(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelInfo, Message: message, Fields: fields})
}

func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

func (m *Manager) SendError(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelError, Message: message, Fields: fields})
}

func (m *Manager) SendCritical(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelCritical, Message: message, Fields: fields})
}

// GetChannels returns the channel names.
func (m *Manager) GetChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Resolve forgets a sent alert so the condition is reported again at once
// if it comes back.
func (m *Manager) Resolve(level Level, message string) {
	m.throttle.Reset(throttleKey(level, message))
}

func throttleKey(level Level, message string) string {
	return fmt.Sprintf("%s:%s", level, message)
}

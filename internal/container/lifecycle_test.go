package container

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"lob-engine/infrastructure/logger"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	health   error
	log      *[]string
}

func (f *fakeComponent) Start(context.Context) error {
	*f.log = append(*f.log, "start "+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop() error {
	*f.log = append(*f.log, "stop "+f.name)
	return f.stopErr
}

func (f *fakeComponent) Health() error { return f.health }

func register(m *LifecycleManager, components ...*fakeComponent) {
	for _, c := range components {
		m.Register(c.name, c)
	}
}

func TestLifecycleOrder(t *testing.T) {
	var log []string
	m := NewLifecycleManager(nil)
	register(m,
		&fakeComponent{name: "venue", log: &log},
		&fakeComponent{name: "metrics", log: &log, stopErr: errors.New("shutdown timeout")},
		&fakeComponent{name: "config_watcher", log: &log, stopErr: errors.New("inotify closed")},
	)
	assert.Equal(t, []string{"venue", "metrics", "config_watcher"}, m.Names())

	require.NoError(t, m.StartAll(context.Background()))
	err := m.StopAll()
	require.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "stop metrics: shutdown timeout")
	assert.Contains(t, err.Error(), "stop config_watcher: inotify closed")
	assert.Equal(t, []string{
		"start venue", "start metrics", "start config_watcher",
		"stop config_watcher", "stop metrics", "stop venue",
	}, log)
}

func TestLifecycleRollsBackOnStartFailure(t *testing.T) {
	var log []string
	m := NewLifecycleManager(nil)
	register(m,
		&fakeComponent{name: "venue", log: &log},
		&fakeComponent{name: "metrics", log: &log, startErr: errors.New("address already in use")},
		&fakeComponent{name: "config_watcher", log: &log},
	)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start metrics: address already in use")
	assert.Equal(t, []string{"start venue", "start metrics", "stop venue"}, log)
}

func TestLifecycleHealthReportsEveryComponent(t *testing.T) {
	var log []string
	m := NewLifecycleManager(nil)
	register(m, &fakeComponent{name: "venue", log: &log})
	assert.NoError(t, m.CheckHealth())

	halted := errors.New("instrument ACME halted")
	badFile := errors.New("config rejected")
	register(m,
		&fakeComponent{name: "metrics", log: &log},
		&fakeComponent{name: "venue2", log: &log, health: halted},
		&fakeComponent{name: "config_watcher", log: &log, health: badFile},
	)
	err := m.CheckHealth()
	assert.ErrorIs(t, err, halted)
	assert.ErrorIs(t, err, badFile)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestMetricsEndpoint(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "lob_engine_trades_total 0\n")
	})
	ep := newMetricsEndpoint("127.0.0.1:0", handler, logger.NewNop())
	assert.Error(t, ep.Health())
	assert.Empty(t, ep.Addr())

	require.NoError(t, ep.Start(context.Background()))
	require.NoError(t, ep.Start(context.Background()))
	assert.NoError(t, ep.Health())

	resp, err := http.Get("http://" + ep.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "lob_engine_trades_total")

	require.NoError(t, ep.Stop())
	assert.Error(t, ep.Health())
	assert.NoError(t, ep.Stop())
}

func TestMetricsEndpointBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ep := newMetricsEndpoint(ln.Addr().String(), http.NotFoundHandler(), logger.NewNop())
	err = ep.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
	assert.Error(t, ep.Health())
}

package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lob-engine/infrastructure/logger"
)

// Lifecycle is implemented by the venue, the config watcher and the
// metrics endpoint.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type namedComponent struct {
	name string
	Lifecycle
}

// LifecycleManager starts components in registration order and stops them
// in reverse, so the venue is up before anything that feeds it and drains
// last.
type LifecycleManager struct {
	log        *logger.Logger
	components []namedComponent
	mu         sync.RWMutex
}

func NewLifecycleManager(log *logger.Logger) *LifecycleManager {
	if log == nil {
		log = logger.NewNop()
	}
	return &LifecycleManager{log: log}
}

// Register appends a component under name.
func (m *LifecycleManager) Register(name string, component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, namedComponent{name: name, Lifecycle: component})
}

// Names lists the registered components in start order.
func (m *LifecycleManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.name)
	}
	return names
}

// StartAll starts every component. A failure stops the ones already
// running before the error is returned.
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, c := range m.components {
		if err := c.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.components[j].Stop(); stopErr != nil {
					m.log.LogError(stopErr, map[string]interface{}{"component": m.components[j].name, "action": "rollback"})
				}
			}
			return fmt.Errorf("start %s: %w", c.name, err)
		}
		m.log.Debug("component started", zap.String("component", c.name))
	}
	return nil
}

// StopAll stops every component, last registered first, and combines
// the failures.
func (m *LifecycleManager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs error
	for i := len(m.components) - 1; i >= 0; i-- {
		c := m.components[i]
		if err := c.Stop(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", c.name, err))
		}
	}
	return errs
}

// CheckHealth reports every unhealthy component. A halted instrument and a
// rejected config file show up side by side.
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs error
	for _, c := range m.components {
		if err := c.Health(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errs
}

// metricsEndpoint serves the Prometheus handler. The port is bound in
// Start so a busy address fails the container start instead of a log line.
type metricsEndpoint struct {
	addr    string
	handler http.Handler
	log     *logger.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	serveErr chan error
}

func newMetricsEndpoint(addr string, handler http.Handler, log *logger.Logger) *metricsEndpoint {
	return &metricsEndpoint{addr: addr, handler: handler, log: log}
}

func (e *metricsEndpoint) Start(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", e.addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.handler)
	e.listener = ln
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	e.serveErr = make(chan error, 1)

	go func(srv *http.Server, done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}(e.server, e.serveErr)

	e.log.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address, useful when configured with port 0.
func (e *metricsEndpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

func (e *metricsEndpoint) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.server.Shutdown(ctx)
	if serveErr := <-e.serveErr; serveErr != nil {
		err = multierr.Append(err, serveErr)
	}
	e.server, e.listener = nil, nil
	e.log.Info("metrics endpoint stopped")
	return err
}

func (e *metricsEndpoint) Health() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server == nil {
		return errors.New("metrics endpoint not serving")
	}
	select {
	case err := <-e.serveErr:
		// put it back for Stop
		e.serveErr <- err
		if err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		return errors.New("metrics endpoint exited")
	default:
		return nil
	}
}

// Package venue runs one matching engine per instrument, each on its own
// goroutine. Requests for an instrument are applied in arrival order;
// instruments proceed in parallel.
package venue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lob-engine/engine"
	"lob-engine/infrastructure/logger"
	"lob-engine/order"
)

var (
	// ErrUnknownInstrument is returned for an instrument with no book.
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrNotRunning is returned before Start and after Stop.
	ErrNotRunning = errors.New("venue not running")
	// ErrHalted is returned by an instrument whose engine reported an
	// invariant violation.
	ErrHalted = errors.New("instrument halted")
)

// LatencyObserver is told how long each command took.
type LatencyObserver interface {
	ObserveCommand(instrument, command string, elapsed time.Duration, err error)
}

// BookObserver receives a book snapshot after every command.
type BookObserver interface {
	ObserveBook(engine.Snapshot)
}

// Config describes the instruments and the engine settings they share.
type Config struct {
	Instruments map[string]order.Constraints
	Policy      engine.Policy
	Phase       engine.Phase
	// Clock is the initial logical time of every engine.
	Clock time.Time
	// RequestBuffer is the per-instrument request queue length.
	RequestBuffer int
	// SnapshotLevels is the depth handed to book observers.
	SnapshotLevels int
}

// Option configures a Venue.
type Option func(*Venue)

// WithSink sets the engine event sink. It is called from every instrument
// goroutine and must be safe for concurrent use.
func WithSink(s engine.Sink) Option {
	return func(v *Venue) { v.sink = s }
}

func WithLatencyObserver(o LatencyObserver) Option {
	return func(v *Venue) { v.latency = append(v.latency, o) }
}

func WithBookObserver(o BookObserver) Option {
	return func(v *Venue) { v.books = append(v.books, o) }
}

// WithHaltHandler registers fn to be told when an instrument halts. fn runs
// on the halted instrument's goroutine.
func WithHaltHandler(fn func(instrument string, err error)) Option {
	return func(v *Venue) { v.onHalt = append(v.onHalt, fn) }
}

func WithLogger(l *logger.Logger) Option {
	return func(v *Venue) { v.log = l }
}

// Venue owns the per-instrument workers.
type Venue struct {
	cfg     Config
	sink    engine.Sink
	latency []LatencyObserver
	books   []BookObserver
	onHalt  []func(instrument string, err error)
	log     *logger.Logger

	mu      sync.RWMutex
	workers map[string]*worker
	running bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an engine per configured instrument. Workers start with Start.
func New(cfg Config, opts ...Option) (*Venue, error) {
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("venue needs at least one instrument")
	}
	if cfg.RequestBuffer <= 0 {
		cfg.RequestBuffer = 1024
	}
	if cfg.SnapshotLevels <= 0 {
		cfg.SnapshotLevels = 5
	}
	if cfg.Phase == "" {
		cfg.Phase = engine.PhaseOpen
	}
	v := &Venue{cfg: cfg, workers: make(map[string]*worker, len(cfg.Instruments))}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		v.log = logger.NewNop()
	}

	sm := order.NewStateMachine()
	for inst, c := range cfg.Instruments {
		engOpts := []engine.Option{
			engine.WithPolicy(cfg.Policy),
			engine.WithPhase(cfg.Phase),
			engine.WithClock(cfg.Clock),
			engine.WithStateMachine(sm),
		}
		if v.sink != nil {
			engOpts = append(engOpts, engine.WithSink(v.sink))
		}
		eng, err := engine.New(inst, c, engOpts...)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", inst, err)
		}
		v.workers[inst] = newWorker(v, eng, cfg.RequestBuffer)
	}
	return v, nil
}

// Start launches one goroutine per instrument. Cancelling ctx stops them
// like Stop does.
func (v *Venue) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		return nil
	}
	if v.stopped {
		return errors.New("venue cannot be restarted")
	}
	ctx, v.cancel = context.WithCancel(ctx)
	for _, w := range v.workers {
		v.wg.Add(1)
		go func(w *worker) {
			defer v.wg.Done()
			w.run(ctx)
		}(w)
	}
	v.running = true
	v.log.Info("venue started", zap.Int("instruments", len(v.workers)))
	return nil
}

// Stop ends every worker. Queued requests that were not applied fail with
// ErrNotRunning.
func (v *Venue) Stop() error {
	v.mu.Lock()
	if !v.running {
		v.mu.Unlock()
		return nil
	}
	v.running = false
	v.stopped = true
	v.cancel()
	v.mu.Unlock()

	v.wg.Wait()
	v.log.Info("venue stopped")
	return nil
}

// Health reports halted instruments.
func (v *Venue) Health() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.running {
		return ErrNotRunning
	}
	var err error
	for _, inst := range v.instrumentsLocked() {
		if h := v.workers[inst].halted(); h != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", inst, h))
		}
	}
	return err
}

// Instruments returns the configured instruments, sorted.
func (v *Venue) Instruments() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.instrumentsLocked()
}

func (v *Venue) instrumentsLocked() []string {
	out := make([]string, 0, len(v.workers))
	for inst := range v.workers {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}

// Constraints returns the constraints of instrument.
func (v *Venue) Constraints(instrument string) (order.Constraints, bool) {
	c, ok := v.cfg.Instruments[instrument]
	return c, ok
}

func (v *Venue) worker(instrument string) (*worker, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	w, ok := v.workers[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, instrument)
	}
	if !v.running {
		return nil, ErrNotRunning
	}
	return w, nil
}

// Submit routes n to its instrument.
func (v *Venue) Submit(ctx context.Context, n engine.NewOrder) (engine.Result, error) {
	return v.call(ctx, n.Instrument, "submit", func(e *engine.Engine) (engine.Result, error) {
		return e.Submit(n)
	})
}

// SubmitOCO routes a one-cancels-other pair. Both orders must name the
// same instrument.
func (v *Venue) SubmitOCO(ctx context.Context, a, b engine.NewOrder) (engine.Result, error) {
	if b.Instrument != "" && b.Instrument != a.Instrument {
		return engine.Result{}, fmt.Errorf("oco members on %s and %s: %w", a.Instrument, b.Instrument, engine.ErrValidation)
	}
	return v.call(ctx, a.Instrument, "submit_oco", func(e *engine.Engine) (engine.Result, error) {
		return e.SubmitOCO(a, b)
	})
}

// SubmitOSO routes a primary and its linked orders to the primary's
// instrument.
func (v *Venue) SubmitOSO(ctx context.Context, primary engine.NewOrder, linked ...engine.NewOrder) (engine.Result, error) {
	for _, n := range linked {
		if n.Instrument != "" && n.Instrument != primary.Instrument {
			return engine.Result{}, fmt.Errorf("oso linked order on %s, primary on %s: %w", n.Instrument, primary.Instrument, engine.ErrValidation)
		}
	}
	return v.call(ctx, primary.Instrument, "submit_oso", func(e *engine.Engine) (engine.Result, error) {
		return e.SubmitOSO(primary, linked...)
	})
}

func (v *Venue) Cancel(ctx context.Context, c engine.CancelOrder) (engine.Result, error) {
	return v.call(ctx, c.Instrument, "cancel", func(e *engine.Engine) (engine.Result, error) {
		return e.Cancel(c)
	})
}

func (v *Venue) Modify(ctx context.Context, m engine.ModifyOrder) (engine.Result, error) {
	return v.call(ctx, m.Instrument, "modify", func(e *engine.Engine) (engine.Result, error) {
		return e.Modify(m)
	})
}

// Session applies ev to one instrument.
func (v *Venue) Session(ctx context.Context, instrument string, ev engine.SessionEvent) (engine.Result, error) {
	return v.call(ctx, instrument, "session_"+sessionLabel(ev.Kind), func(e *engine.Engine) (engine.Result, error) {
		return e.Session(ev)
	})
}

// SessionAll applies ev to every instrument and combines the errors.
func (v *Venue) SessionAll(ctx context.Context, ev engine.SessionEvent) (map[string]engine.Result, error) {
	out := make(map[string]engine.Result)
	var errs error
	for _, inst := range v.Instruments() {
		res, err := v.Session(ctx, inst, ev)
		out[inst] = res
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", inst, err))
		}
	}
	return out, errs
}

// SetPolicy replaces the policy of every engine, between commands.
func (v *Venue) SetPolicy(ctx context.Context, p engine.Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("engine policy: %w", err)
	}
	var errs error
	for _, inst := range v.Instruments() {
		_, err := v.call(ctx, inst, "set_policy", func(e *engine.Engine) (engine.Result, error) {
			return engine.Result{}, e.SetPolicy(p)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", inst, err))
		}
	}
	if errs == nil {
		v.log.Info("engine policy updated",
			zap.Duration("gtc_max_lifetime", p.GTCMaxLifetime),
			zap.String("oco_trigger", string(p.OCOTrigger)),
			zap.Int("terminal_history", p.TerminalHistory),
			zap.Int("max_conditional_passes", p.MaxConditionalPasses))
	}
	return errs
}

// Snapshot returns a consistent view of the instrument's book.
func (v *Venue) Snapshot(ctx context.Context, instrument string, levels int) (engine.Snapshot, error) {
	var snap engine.Snapshot
	err := v.Query(ctx, instrument, func(e *engine.Engine) {
		snap = e.Snapshot(levels)
	})
	return snap, err
}

// Order returns a copy of a live or recently terminal order.
func (v *Venue) Order(ctx context.Context, instrument string, id uint64) (order.Order, bool, error) {
	var (
		o  order.Order
		ok bool
	)
	err := v.Query(ctx, instrument, func(e *engine.Engine) {
		o, ok = e.Order(id)
	})
	return o, ok, err
}

// Query runs fn on the instrument goroutine between commands. fn must not
// retain the engine.
func (v *Venue) Query(ctx context.Context, instrument string, fn func(*engine.Engine)) error {
	_, err := v.call(ctx, instrument, "", func(e *engine.Engine) (engine.Result, error) {
		fn(e)
		return engine.Result{}, nil
	})
	return err
}

// call queues apply on the instrument goroutine and waits for its reply.
// Once queued, a command is applied even if ctx ends first; the caller only
// stops waiting.
func (v *Venue) call(ctx context.Context, instrument, name string, apply func(*engine.Engine) (engine.Result, error)) (engine.Result, error) {
	w, err := v.worker(instrument)
	if err != nil {
		return engine.Result{}, err
	}
	req := request{name: name, apply: apply, resp: make(chan reply, 1)}
	select {
	case w.reqs <- req:
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	case <-w.done:
		return engine.Result{}, ErrNotRunning
	}
	select {
	case r := <-req.resp:
		return r.res, r.err
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	case <-w.done:
		select {
		case r := <-req.resp:
			return r.res, r.err
		default:
			return engine.Result{}, ErrNotRunning
		}
	}
}

func sessionLabel(k engine.SessionKind) string {
	switch k {
	case engine.SessionOpen:
		return "open"
	case engine.SessionClose:
		return "close"
	case engine.SessionClockTick:
		return "tick"
	}
	return "unknown"
}

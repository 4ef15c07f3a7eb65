package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lob-engine/engine"
)

type request struct {
	// name labels the command for observers; queries leave it empty.
	name  string
	apply func(*engine.Engine) (engine.Result, error)
	resp  chan reply
}

type reply struct {
	res engine.Result
	err error
}

// worker is the single writer of one engine.
type worker struct {
	v    *Venue
	eng  *engine.Engine
	reqs chan request
	done chan struct{}

	mu    sync.Mutex
	fault error
}

func newWorker(v *Venue, eng *engine.Engine, buffer int) *worker {
	return &worker{
		v:    v,
		eng:  eng,
		reqs: make(chan request, buffer),
		done: make(chan struct{}),
	}
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqs:
			w.serve(req)
		}
	}
}

func (w *worker) serve(req request) {
	if err := w.halted(); err != nil {
		req.resp <- reply{err: err}
		return
	}
	start := time.Now()
	res, err := w.apply(req)
	if req.name != "" {
		elapsed := time.Since(start)
		inst := w.eng.Instrument()
		for _, o := range w.v.latency {
			o.ObserveCommand(inst, req.name, elapsed, err)
		}
		if len(w.v.books) > 0 && w.halted() == nil {
			snap := w.eng.Snapshot(w.v.cfg.SnapshotLevels)
			for _, o := range w.v.books {
				o.ObserveBook(snap)
			}
		}
	}
	req.resp <- reply{res: res, err: err}
}

// apply runs one request. An invariant violation halts the instrument:
// the book can no longer be trusted, so every later request is refused.
func (w *worker) apply(req request) (res engine.Result, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		iv, ok := r.(engine.InvariantViolation)
		if !ok {
			panic(r)
		}
		w.mu.Lock()
		w.fault = fmt.Errorf("%w: %s", ErrHalted, iv.Detail)
		err = w.fault
		w.mu.Unlock()
		w.v.log.LogError(iv, map[string]interface{}{
			"instrument": iv.Instrument,
			"command":    req.name,
		})
		for _, fn := range w.v.onHalt {
			fn(w.eng.Instrument(), err)
		}
		res = engine.Result{}
	}()
	return req.apply(w.eng)
}

func (w *worker) halted() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fault
}

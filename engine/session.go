package engine

import (
	"sort"
	"time"

	"lob-engine/order"
)

// tick advances the logical clock and applies every time-driven
// transition: GTD expiry, the GTC lifetime sweep and GAT activation.
func (e *Engine) tick(t time.Time) {
	if !t.IsZero() {
		e.now = t
	}
	for _, o := range ordered(e.live, nil) {
		if _, ok := e.live[o.ID]; !ok {
			continue
		}
		switch {
		case o.TIF == order.GTD && !o.ExpireAt.After(e.now):
			e.terminate(o, order.StatusExpired, EventExpired, "expiry reached")
		case e.overAge(o):
			e.terminate(o, order.StatusExpired, EventExpired, "max lifetime exceeded")
		}
	}
	e.activateDue()
}

// overAge reports whether a GTC order, or an activated GAT order, has
// outlived the configured maximum lifetime.
func (e *Engine) overAge(o *order.Order) bool {
	limit := e.policy.GTCMaxLifetime
	if limit <= 0 {
		return false
	}
	switch o.TIF {
	case order.GTC:
		return e.now.Sub(o.AcceptedAt) >= limit
	case order.GAT:
		if e.held[o.ID] == holdActivation {
			return false
		}
		return e.now.Sub(o.ActivateAt) >= limit
	}
	return false
}

// activateDue promotes GAT orders whose activation time has passed. They
// only activate while the session is open.
func (e *Engine) activateDue() {
	if e.phase != PhaseOpen {
		return
	}
	due := e.heldOrders(holdActivation)
	sort.SliceStable(due, func(i, j int) bool { return due[i].ActivateAt.Before(due[j].ActivateAt) })
	for _, o := range due {
		if o.ActivateAt.After(e.now) {
			continue
		}
		if _, ok := e.live[o.ID]; !ok || e.held[o.ID] != holdActivation {
			continue
		}
		delete(e.held, o.ID)
		e.route(o)
	}
}

// open releases the on-open queue in arrival order, then any GAT orders
// that became due while the session was not open.
func (e *Engine) open() {
	e.phase = PhaseOpen
	queue := e.onOpen
	e.onOpen = nil
	for _, id := range queue {
		o, ok := e.live[id]
		if !ok || e.held[id] != holdOpen {
			continue
		}
		delete(e.held, id)
		e.execute(o, false)
	}
	e.activateDue()
}

// close executes the on-close queue, expires DAY orders and ends the
// session.
func (e *Engine) close() {
	queue := e.onClose
	e.onClose = nil
	for _, id := range queue {
		o, ok := e.live[id]
		if !ok || e.held[id] != holdClose {
			continue
		}
		delete(e.held, id)
		e.execute(o, true)
	}
	e.settle()
	for _, o := range ordered(e.live, nil) {
		if _, ok := e.live[o.ID]; !ok {
			continue
		}
		if o.TIF == order.DAY || e.held[o.ID] == holdOpen {
			e.terminate(o, order.StatusExpired, EventExpired, "session closed")
		}
	}
	e.onOpen = nil
	e.phase = PhaseClosed
}

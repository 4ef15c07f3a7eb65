// Package engine implements a single-instrument limit order book matching
// engine with price-time priority.
//
// An Engine is single-writer: commands must be applied one at a time, in
// arrival order, and queries must not run concurrently with a command. The
// venue package provides a goroutine-per-instrument wrapper.
package engine

import (
	"fmt"
	"sort"
	"time"

	"lob-engine/book"
	"lob-engine/order"
)

// holdKind records why a live order is not on the book.
type holdKind uint8

const (
	holdTrigger holdKind = iota + 1
	holdActivation
	holdOpen
	holdClose
	holdLinked
	holdPeg
)

// Engine owns the order book of one instrument.
type Engine struct {
	instrument  string
	constraints order.Constraints
	policy      Policy
	sink        Sink
	sm          *order.StateMachine

	bids *book.Side
	asks *book.Side

	live    map[uint64]*order.Order
	held    map[uint64]holdKind
	pegs    map[uint64]*order.Order
	onOpen  []uint64
	onClose []uint64
	groups  map[uint64]*group
	history *history

	// released holds OSO children whose primary filled, awaiting admission.
	released []uint64

	phase     Phase
	now       time.Time
	lastTrade int64

	nextOrderID uint64
	nextGroupID uint64
	nextTradeID uint64
	seq         uint64
	eventSeq    uint64

	events []Event
}

// New creates an engine for instrument. The session starts Open unless
// WithPhase says otherwise.
func New(instrument string, c order.Constraints, opts ...Option) (*Engine, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	e := &Engine{
		instrument:  instrument,
		constraints: c,
		policy:      DefaultPolicy(),
		bids:        book.NewSide(order.Buy),
		asks:        book.NewSide(order.Sell),
		live:        make(map[uint64]*order.Order),
		held:        make(map[uint64]holdKind),
		pegs:        make(map[uint64]*order.Order),
		groups:      make(map[uint64]*group),
		phase:       PhaseOpen,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.policy.Validate(); err != nil {
		return nil, fmt.Errorf("engine policy: %w", err)
	}
	switch e.phase {
	case PhasePreOpen, PhaseOpen, PhaseClosed:
	default:
		return nil, fmt.Errorf("unknown session phase %q", e.phase)
	}
	if e.sm == nil {
		e.sm = order.NewStateMachine()
	}
	e.history = newHistory(e.policy.TerminalHistory)
	return e, nil
}

// Instrument returns the instrument this engine matches.
func (e *Engine) Instrument() string { return e.instrument }

// Constraints returns the instrument constraints.
func (e *Engine) Constraints() order.Constraints { return e.constraints }

// Policy returns the active policy.
func (e *Engine) Policy() Policy { return e.policy }

// SetPolicy replaces the policy between commands.
func (e *Engine) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("engine policy: %w", err)
	}
	e.policy = p
	e.history.resize(p.TerminalHistory)
	return nil
}

// Submit accepts, rests, matches, holds or rejects one order.
func (e *Engine) Submit(n NewOrder) (Result, error) {
	e.begin()
	o := e.build(n)
	if rerr := e.validate(n, o); rerr != nil {
		return e.fail(rerr, o)
	}
	if n.Group != 0 {
		if g := e.groups[n.Group]; g == nil || g.kind != groupOSO {
			return e.fail(rejectf(ErrValidation, "group %d is not an open OSO group", n.Group), o)
		}
	} else if o.TIF == order.FOK && e.holdFor(o) == 0 {
		if fillable := e.fillable(o); fillable < o.Quantity {
			return e.fail(rejectf(ErrInfeasibleFillOrKill, "fillable %d < quantity %d", fillable, o.Quantity), o)
		}
	}
	e.accept(o)
	if n.Group != 0 {
		e.link(e.groups[n.Group], o)
	} else {
		e.route(o)
	}
	return e.end(o.ID), nil
}

// SubmitOCO accepts two orders linked one-cancels-other.
func (e *Engine) SubmitOCO(a, b NewOrder) (Result, error) {
	e.begin()
	oa, ob := e.build(a), e.build(b)
	for i, pair := range []struct {
		n NewOrder
		o *order.Order
	}{{a, oa}, {b, ob}} {
		if rerr := e.validateMember(pair.n, pair.o); rerr != nil {
			rerr.Reason = fmt.Sprintf("oco member %d: %s", i+1, rerr.Reason)
			return e.fail(rerr, pair.o)
		}
	}
	if rerr := ocoCrossing(oa, ob); rerr != nil {
		return e.fail(rerr, ob)
	}
	e.accept(oa)
	e.accept(ob)
	e.newGroup(groupOCO, oa, ob)
	e.route(oa)
	if !ob.Status.Terminal() {
		e.route(ob)
	}
	return e.end(oa.ID, ob.ID), nil
}

// SubmitOSO accepts a primary order whose linked orders are submitted only
// once the primary is completely filled.
func (e *Engine) SubmitOSO(primary NewOrder, linked ...NewOrder) (Result, error) {
	e.begin()
	p := e.build(primary)
	if len(linked) == 0 {
		return e.fail(rejectf(ErrValidation, "oso group needs at least one linked order"), p)
	}
	if rerr := e.validateMember(primary, p); rerr != nil {
		rerr.Reason = "oso primary: " + rerr.Reason
		return e.fail(rerr, p)
	}
	children := make([]*order.Order, 0, len(linked))
	for i, n := range linked {
		c := e.build(n)
		if rerr := e.validateMember(n, c); rerr != nil {
			rerr.Reason = fmt.Sprintf("oso linked order %d: %s", i+1, rerr.Reason)
			return e.fail(rerr, c)
		}
		children = append(children, c)
	}
	e.accept(p)
	ids := []uint64{p.ID}
	for _, c := range children {
		e.accept(c)
		ids = append(ids, c.ID)
	}
	g := e.newGroup(groupOSO, p)
	for _, c := range children {
		e.link(g, c)
	}
	e.route(p)
	return e.end(ids...), nil
}

// Cancel removes a live order from the book, the trigger registry and its
// group.
func (e *Engine) Cancel(c CancelOrder) (Result, error) {
	e.begin()
	if c.Instrument != "" && c.Instrument != e.instrument {
		return e.fail(rejectf(ErrValidation, "instrument %s routed to %s book", c.Instrument, e.instrument), nil)
	}
	o, rerr := e.lookup(c.OrderID)
	if rerr != nil {
		return e.fail(rerr, nil)
	}
	if !e.sm.CanCancel(o.Status) {
		return e.fail(&RejectError{Kind: ErrAlreadyTerminal, Reason: fmt.Sprintf("order is %s", o.Status), OrderID: o.ID}, o)
	}
	e.terminate(o, order.StatusCancelled, EventCancelled, "cancelled by request")
	return e.end(), nil
}

// Modify changes quantity, price or stop price of a live order. A price
// change or a quantity increase on a resting order is a cancel+replace that
// loses time priority; a pure reduction keeps it.
func (e *Engine) Modify(m ModifyOrder) (Result, error) {
	e.begin()
	if m.Instrument != "" && m.Instrument != e.instrument {
		return e.fail(rejectf(ErrValidation, "instrument %s routed to %s book", m.Instrument, e.instrument), nil)
	}
	o, rerr := e.lookup(m.OrderID)
	if rerr != nil {
		return e.fail(rerr, nil)
	}
	if rerr := e.validateModify(m, o); rerr != nil {
		rerr.OrderID = o.ID
		return e.fail(rerr, o)
	}
	qty := o.Quantity
	if m.Quantity != 0 {
		qty = m.Quantity
	}
	price := o.LimitPrice
	if m.Price != 0 {
		price = m.Price
	}
	side := e.sideOf(o.Side)
	switch {
	case !side.Contains(o.ID):
		o.Remaining = qty - o.Filled()
		o.Quantity = qty
		o.LimitPrice = price
		if m.StopPrice != 0 {
			o.StopPrice = m.StopPrice
		}
		e.emitOrder(EventModified, o, o.Quantity, "")
	case price != o.LimitPrice || qty > o.Quantity:
		if e.phase != PhaseOpen {
			return e.fail(&RejectError{Kind: ErrMarketClosed, Reason: fmt.Sprintf("session is %s", e.phase), OrderID: o.ID}, o)
		}
		side.Remove(o.ID)
		o.Remaining = qty - o.Filled()
		o.Quantity = qty
		o.LimitPrice = price
		o.Seq = e.nextSeq()
		e.emitOrder(EventModified, o, o.Quantity, "replaced")
		e.execute(o, false)
	default:
		side.Reduce(o, qty-o.Filled())
		o.Quantity = qty
		e.emitOrder(EventModified, o, o.Quantity, "")
	}
	return e.end(), nil
}

// Session applies an Open, Close or ClockTick event.
func (e *Engine) Session(ev SessionEvent) (Result, error) {
	e.begin()
	if !ev.Time.IsZero() && ev.Time.Before(e.now) {
		return e.fail(rejectf(ErrValidation, "clock moved backwards: %s < %s",
			ev.Time.Format(time.RFC3339Nano), e.now.Format(time.RFC3339Nano)), nil)
	}
	switch ev.Kind {
	case SessionOpen:
		if e.phase == PhaseOpen {
			return e.fail(rejectf(ErrValidation, "session already open"), nil)
		}
		e.tick(ev.Time)
		e.open()
	case SessionClose:
		if e.phase == PhaseClosed {
			return e.fail(rejectf(ErrValidation, "session already closed"), nil)
		}
		e.tick(ev.Time)
		e.close()
	case SessionClockTick:
		if ev.Time.IsZero() {
			return e.fail(rejectf(ErrValidation, "clock tick without a timestamp"), nil)
		}
		e.tick(ev.Time)
	default:
		return e.fail(rejectf(ErrValidation, "unknown session event %q", ev.Kind), nil)
	}
	return e.end(), nil
}

func (e *Engine) begin() {
	e.events = make([]Event, 0, 8)
}

func (e *Engine) end(ids ...uint64) Result {
	e.settle()
	e.checkInvariants()
	return Result{OrderIDs: ids, Events: e.events}
}

// fail emits the Rejected event for a command that mutated nothing.
func (e *Engine) fail(rerr *RejectError, o *order.Order) (Result, error) {
	ev := Event{Kind: EventRejected, OrderID: rerr.OrderID, Reason: rerr.Reason, Code: rerr.Code()}
	if o != nil {
		ev.ClientID = o.ClientID
		ev.Side = o.Side
		ev.Type = o.Type
		ev.Price = o.LimitPrice
		ev.Quantity = o.Quantity
	}
	e.emit(ev)
	return Result{Events: e.events}, rerr
}

func (e *Engine) build(n NewOrder) *order.Order {
	tif := n.TIF
	if tif == "" {
		tif = order.DAY
	}
	o := &order.Order{
		ClientID:     n.ClientID,
		Instrument:   e.instrument,
		Side:         n.Side,
		Type:         n.Type,
		TIF:          tif,
		StopPrice:    n.StopPrice,
		TrailPercent: n.TrailPercent,
		PegOffset:    n.PegOffset,
		ExpireAt:     n.ExpireAt,
		ActivateAt:   n.ActivateAt,
		Quantity:     n.Quantity,
		Remaining:    n.Quantity,
		Status:       order.StatusNew,
	}
	if n.Type == order.TypePegLimit {
		o.PegCap = n.LimitPrice
	} else {
		o.LimitPrice = n.LimitPrice
	}
	return o
}

func (e *Engine) accept(o *order.Order) {
	e.nextOrderID++
	o.ID = e.nextOrderID
	o.Seq = e.nextSeq()
	o.AcceptedAt = e.now
	e.live[o.ID] = o
	e.emitOrder(EventAccepted, o, o.Quantity, "")
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

func (e *Engine) lookup(id uint64) (*order.Order, *RejectError) {
	if o, ok := e.live[id]; ok {
		return o, nil
	}
	if h, ok := e.history.get(id); ok {
		return nil, &RejectError{Kind: ErrAlreadyTerminal, Reason: fmt.Sprintf("order is %s", h.Status), OrderID: id}
	}
	return nil, &RejectError{Kind: ErrUnknownOrder, Reason: "no such order", OrderID: id}
}

func (e *Engine) sideOf(s order.Side) *book.Side {
	if s == order.Buy {
		return e.bids
	}
	return e.asks
}

// terminate ends a live order that did not fill.
func (e *Engine) terminate(o *order.Order, status order.Status, kind EventKind, reason string) {
	qty := o.Remaining
	e.sideOf(o.Side).Remove(o.ID)
	e.sm.Transition(o, status)
	e.emitOrder(kind, o, qty, reason)
	e.retire(o)
	e.groupTerminated(o)
}

// complete ends an order whose remaining quantity reached zero.
func (e *Engine) complete(o *order.Order) {
	e.sideOf(o.Side).Remove(o.ID)
	e.sm.Transition(o, order.StatusFilled)
	e.emitOrder(EventFilled, o, 0, "")
	e.retire(o)
	e.groupExecuted(o, true)
}

// retire drops a terminal order from every live index.
func (e *Engine) retire(o *order.Order) {
	delete(e.live, o.ID)
	delete(e.held, o.ID)
	delete(e.pegs, o.ID)
	e.history.add(*o)
}

// ordered returns orders sorted by sequence number.
func ordered(m map[uint64]*order.Order, keep func(*order.Order) bool) []*order.Order {
	out := make([]*order.Order, 0, len(m))
	for _, o := range m {
		if keep == nil || keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (e *Engine) heldOrders(kind holdKind) []*order.Order {
	return ordered(e.live, func(o *order.Order) bool { return e.held[o.ID] == kind })
}

func (e *Engine) emit(ev Event) {
	e.eventSeq++
	ev.Instrument = e.instrument
	ev.Seq = e.eventSeq
	ev.Time = e.now
	e.events = append(e.events, ev)
	if e.sink != nil {
		e.sink.OnEvent(ev)
	}
}

func (e *Engine) emitOrder(kind EventKind, o *order.Order, qty int64, reason string) {
	e.emit(Event{
		Kind:     kind,
		OrderID:  o.ID,
		ClientID: o.ClientID,
		Side:     o.Side,
		Type:     o.Type,
		Price:    o.LimitPrice,
		Quantity: qty,
		Reason:   reason,
	})
}

func (e *Engine) checkInvariants() {
	bid, okBid := e.bids.BestPrice()
	ask, okAsk := e.asks.BestPrice()
	if okBid && okAsk && bid >= ask {
		panic(InvariantViolation{Instrument: e.instrument, Detail: fmt.Sprintf("crossed book: bid %d >= ask %d", bid, ask)})
	}
	if !e.policy.VerifyBook {
		return
	}
	for _, s := range []*book.Side{e.bids, e.asks} {
		if err := s.Verify(); err != nil {
			panic(InvariantViolation{Instrument: e.instrument, Detail: fmt.Sprintf("%s side: %v", s.Side(), err)})
		}
		for _, o := range s.Orders() {
			if e.live[o.ID] != o {
				panic(InvariantViolation{Instrument: e.instrument, Detail: fmt.Sprintf("resting order %d not live", o.ID)})
			}
		}
	}
	for id, o := range e.live {
		if o.Remaining < 0 || o.Remaining > o.Quantity {
			panic(InvariantViolation{Instrument: e.instrument, Detail: fmt.Sprintf("order %d remaining %d of %d", id, o.Remaining, o.Quantity)})
		}
		_, isHeld := e.held[id]
		resting := e.sideOf(o.Side).Contains(id)
		if isHeld == resting {
			panic(InvariantViolation{Instrument: e.instrument, Detail: fmt.Sprintf("order %d held=%v resting=%v", id, isHeld, resting)})
		}
	}
}

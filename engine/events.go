package engine

import (
	"time"

	"lob-engine/order"
)

// EventKind names one kind of engine output.
type EventKind string

const (
	EventAccepted        EventKind = "ACCEPTED"
	EventRejected        EventKind = "REJECTED"
	EventTrade           EventKind = "TRADE"
	EventPartiallyFilled EventKind = "PARTIALLY_FILLED"
	EventFilled          EventKind = "FILLED"
	EventCancelled       EventKind = "CANCELLED"
	EventExpired         EventKind = "EXPIRED"
	EventTriggered       EventKind = "TRIGGERED"
	EventModified        EventKind = "MODIFIED"
)

// Trade is an immutable execution between one buy and one sell order.
// Price is always the resting order's price.
type Trade struct {
	ID          uint64
	Instrument  string
	Price       int64
	Quantity    int64
	BuyOrderID  uint64
	SellOrderID uint64
	Aggressor   order.Side
	Time        time.Time
}

// Event is one state change produced by a command.
//
// Quantity carries the order quantity for Accepted and Modified, the
// cancelled quantity for Cancelled and Expired, and the remaining quantity
// for PartiallyFilled.
type Event struct {
	Kind       EventKind
	Instrument string
	Seq        uint64
	Time       time.Time

	OrderID  uint64
	ClientID string
	Side     order.Side
	Type     order.Type
	Price    int64
	Quantity int64

	Reason string
	Code   string
	Trade  *Trade
}

// Sink receives every event as it is produced, on the engine's goroutine.
type Sink interface {
	OnEvent(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(ev Event) { f(ev) }

type multiSink []Sink

func (m multiSink) OnEvent(ev Event) {
	for _, s := range m {
		s.OnEvent(ev)
	}
}

// Sinks fans events out to every non-nil sink in order.
func Sinks(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Result is the outcome of one accepted command.
type Result struct {
	// OrderIDs lists the ids assigned by the command, in submission order.
	OrderIDs []uint64
	Events   []Event
}

// OrderID returns the first assigned id or 0.
func (r Result) OrderID() uint64 {
	if len(r.OrderIDs) == 0 {
		return 0
	}
	return r.OrderIDs[0]
}

// Trades returns the trades produced by the command.
func (r Result) Trades() []Trade {
	out := make([]Trade, 0)
	for _, ev := range r.Events {
		if ev.Kind == EventTrade && ev.Trade != nil {
			out = append(out, *ev.Trade)
		}
	}
	return out
}

// EventsFor returns the events that concern order id, trades included.
func (r Result) EventsFor(id uint64) []Event {
	out := make([]Event, 0)
	for _, ev := range r.Events {
		if ev.OrderID == id {
			out = append(out, ev)
			continue
		}
		if ev.Trade != nil && (ev.Trade.BuyOrderID == id || ev.Trade.SellOrderID == id) {
			out = append(out, ev)
		}
	}
	return out
}

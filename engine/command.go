package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"lob-engine/order"
)

// NewOrder submits one order. LimitPrice is required for priced types and
// acts as an optional cap for PegLimit. StopPrice is the trigger for stop
// and MIT types and the optional initial stop for trailing types.
type NewOrder struct {
	ClientID     string
	Instrument   string
	Side         order.Side
	Type         order.Type
	TIF          order.TimeInForce
	Quantity     int64
	LimitPrice   int64
	StopPrice    int64
	TrailPercent decimal.Decimal
	PegOffset    int64
	ExpireAt     time.Time
	ActivateAt   time.Time

	// Group joins an existing OSO group as a linked order.
	Group uint64
}

// CancelOrder cancels a live order.
type CancelOrder struct {
	Instrument string
	OrderID    uint64
}

// ModifyOrder changes a live order. Zero fields are left unchanged.
// Quantity is the new total order quantity, filled quantity included.
type ModifyOrder struct {
	Instrument string
	OrderID    uint64
	Quantity   int64
	Price      int64
	StopPrice  int64
}

// SessionKind names a session event.
type SessionKind string

const (
	SessionOpen      SessionKind = "OPEN"
	SessionClose     SessionKind = "CLOSE"
	SessionClockTick SessionKind = "CLOCK_TICK"
)

// SessionEvent drives the session phase and the logical clock.
type SessionEvent struct {
	Kind SessionKind
	Time time.Time
}

// Phase is the trading session phase.
type Phase string

const (
	PhasePreOpen Phase = "PRE_OPEN"
	PhaseOpen    Phase = "OPEN"
	PhaseClosed  Phase = "CLOSED"
)

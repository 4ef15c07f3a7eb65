package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Type is the closed set of supported order types.
type Type string

const (
	TypeMarket            Type = "MARKET"
	TypeLimit             Type = "LIMIT"
	TypeMarketOnOpen      Type = "MOO"
	TypeMarketOnClose     Type = "MOC"
	TypeLimitOnOpen       Type = "LOO"
	TypeLimitOnClose      Type = "LOC"
	TypeMarketIfTouched   Type = "MIT"
	TypeAtTheOpen         Type = "ATO"
	TypePegLimit          Type = "PEG_LIMIT"
	TypeStopLoss          Type = "STOP_LOSS"
	TypeStopLimit         Type = "STOP_LIMIT"
	TypeTrailingStop      Type = "TRAILING_STOP"
	TypeTrailingStopLimit Type = "TRAILING_STOP_LIMIT"
)

var knownTypes = map[Type]bool{
	TypeMarket: true, TypeLimit: true, TypeMarketOnOpen: true, TypeMarketOnClose: true,
	TypeLimitOnOpen: true, TypeLimitOnClose: true, TypeMarketIfTouched: true,
	TypeAtTheOpen: true, TypePegLimit: true, TypeStopLoss: true, TypeStopLimit: true,
	TypeTrailingStop: true, TypeTrailingStopLimit: true,
}

func (t Type) Valid() bool { return knownTypes[t] }

// Priced reports whether the type requires a limit price.
func (t Type) Priced() bool {
	switch t {
	case TypeLimit, TypeLimitOnOpen, TypeLimitOnClose, TypeStopLimit, TypeTrailingStopLimit:
		return true
	}
	return false
}

// MarketLike reports whether the type executes without a price limit once live.
func (t Type) MarketLike() bool {
	switch t {
	case TypeMarket, TypeMarketOnOpen, TypeMarketOnClose, TypeMarketIfTouched,
		TypeAtTheOpen, TypeStopLoss, TypeTrailingStop:
		return true
	}
	return false
}

// Conditional reports whether the type waits in the trigger registry.
func (t Type) Conditional() bool {
	switch t {
	case TypeStopLoss, TypeStopLimit, TypeTrailingStop, TypeTrailingStopLimit, TypeMarketIfTouched:
		return true
	}
	return false
}

func (t Type) Trailing() bool {
	return t == TypeTrailingStop || t == TypeTrailingStopLimit
}

// Triggered returns the live type a conditional order converts into.
func (t Type) Triggered() Type {
	switch t {
	case TypeStopLoss, TypeTrailingStop, TypeMarketIfTouched:
		return TypeMarket
	case TypeStopLimit, TypeTrailingStopLimit:
		return TypeLimit
	}
	return t
}

// TimeInForce controls how long an order stays eligible for matching.
type TimeInForce string

const (
	DAY TimeInForce = "DAY"
	GTC TimeInForce = "GTC"
	FOK TimeInForce = "FOK"
	IOC TimeInForce = "IOC"
	GTD TimeInForce = "GTD"
	GAT TimeInForce = "GAT"
)

func (tif TimeInForce) Valid() bool {
	switch tif {
	case DAY, GTC, FOK, IOC, GTD, GAT:
		return true
	}
	return false
}

// Immediate reports whether an unmatched remainder must never rest.
func (tif TimeInForce) Immediate() bool { return tif == FOK || tif == IOC }

// Status represents order lifecycle.
type Status string

const (
	StatusNew             Status = "NEW"
	StatusPending         Status = "PENDING"
	StatusResting         Status = "RESTING"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusTriggered       Status = "TRIGGERED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Order is one submitted instruction. Identity fields are fixed at
// acceptance; execution fields are only mutated by the engine that owns it.
type Order struct {
	ID         uint64
	ClientID   string
	Instrument string
	Side       Side
	Type       Type
	TIF        TimeInForce

	LimitPrice   int64
	StopPrice    int64
	TrailPercent decimal.Decimal
	PegOffset    int64
	PegCap       int64
	ExpireAt     time.Time
	ActivateAt   time.Time

	Quantity  int64
	Remaining int64
	Status    Status

	Seq        uint64
	AcceptedAt time.Time
	Group      uint64
}

// Filled returns the executed quantity.
func (o *Order) Filled() int64 { return o.Quantity - o.Remaining }

// Marketable reports whether the order crosses a resting order at price.
func (o *Order) Marketable(price int64) bool {
	if o.Type.MarketLike() {
		return true
	}
	if o.Side == Buy {
		return price <= o.LimitPrice
	}
	return price >= o.LimitPrice
}

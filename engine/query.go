package engine

import (
	"time"

	"lob-engine/book"
	"lob-engine/order"
)

// BestBid returns the highest resting bid price.
func (e *Engine) BestBid() (int64, bool) { return e.bids.BestPrice() }

// BestAsk returns the lowest resting ask price.
func (e *Engine) BestAsk() (int64, bool) { return e.asks.BestPrice() }

// Spread returns best ask - best bid when both sides are present.
func (e *Engine) Spread() (int64, bool) {
	bid, okBid := e.bids.BestPrice()
	ask, okAsk := e.asks.BestPrice()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// Depth returns up to levels aggregated levels of side, best first.
func (e *Engine) Depth(side order.Side, levels int) []book.LevelView {
	return e.sideOf(side).Depth(levels)
}

// VolumeAt returns the resting quantity of side at price.
func (e *Engine) VolumeAt(side order.Side, price int64) int64 {
	return e.sideOf(side).VolumeAt(price)
}

// OrderStatus returns the status of a live or recently terminal order.
func (e *Engine) OrderStatus(id uint64) (order.Status, bool) {
	o, ok := e.Order(id)
	if !ok {
		return "", false
	}
	return o.Status, true
}

// Order returns a copy of a live or recently terminal order.
func (e *Engine) Order(id uint64) (order.Order, bool) {
	if o, ok := e.live[id]; ok {
		return *o, true
	}
	return e.history.get(id)
}

// LastTradePrice returns the price of the most recent trade.
func (e *Engine) LastTradePrice() (int64, bool) {
	return e.lastTrade, e.lastTrade != 0
}

// Phase returns the current session phase.
func (e *Engine) Phase() Phase { return e.phase }

// Now returns the logical clock.
func (e *Engine) Now() time.Time { return e.now }

// LiveOrders returns the number of live orders, held ones included.
func (e *Engine) LiveOrders() int { return len(e.live) }

// Snapshot is a consistent point-in-time view of the book.
type Snapshot struct {
	Instrument string
	Phase      Phase
	Time       time.Time
	Bids       []book.LevelView
	Asks       []book.LevelView
	LastTrade  int64
}

// Snapshot returns up to levels levels per side.
func (e *Engine) Snapshot(levels int) Snapshot {
	return Snapshot{
		Instrument: e.instrument,
		Phase:      e.phase,
		Time:       e.now,
		Bids:       e.bids.Depth(levels),
		Asks:       e.asks.Depth(levels),
		LastTrade:  e.lastTrade,
	}
}

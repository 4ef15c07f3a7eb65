package market

import (
	"sync"
	"time"

	"lob-engine/engine"
)

// Bar is an OHLCV bar in ticks and lots. Start is the interval start on the
// logical clock.
type Bar struct {
	Instrument string
	Start      time.Time
	Open       int64
	High       int64
	Low        int64
	Close      int64
	Volume     int64
	Trades     int
}

// BarAggregator builds fixed-interval bars per instrument from trades. It
// is an engine.Sink; closed bars go to the publisher.
type BarAggregator struct {
	Interval time.Duration
	pub      *Publisher
	mu       sync.Mutex
	current  map[string]*Bar
}

func NewBarAggregator(interval time.Duration, pub *Publisher) *BarAggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &BarAggregator{Interval: interval, pub: pub, current: make(map[string]*Bar)}
}

// OnEvent implements engine.Sink.
func (a *BarAggregator) OnEvent(ev engine.Event) {
	if ev.Kind != engine.EventTrade || ev.Trade == nil {
		return
	}
	if closed := a.OnTrade(*ev.Trade); closed != nil && a.pub != nil {
		a.pub.PublishBar(*closed)
	}
}

// OnTrade folds t into the current bar and returns the bar it closed, if
// any.
func (a *BarAggregator) OnTrade(t engine.Trade) *Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := t.Time.Truncate(a.Interval)
	cur := a.current[t.Instrument]
	var closed *Bar
	if cur == nil || start.After(cur.Start) {
		closed = cur
		cur = &Bar{Instrument: t.Instrument, Start: start, Open: t.Price, High: t.Price, Low: t.Price}
		a.current[t.Instrument] = cur
	}
	if t.Price > cur.High {
		cur.High = t.Price
	}
	if t.Price < cur.Low {
		cur.Low = t.Price
	}
	cur.Close = t.Price
	cur.Volume += t.Quantity
	cur.Trades++
	return closed
}

// Current returns a copy of the open bar of instrument.
func (a *BarAggregator) Current(instrument string) (Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.current[instrument]
	if b == nil {
		return Bar{}, false
	}
	return *b, true
}

// Flush closes and returns every open bar, e.g. at session close.
func (a *BarAggregator) Flush() []Bar {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Bar, 0, len(a.current))
	for inst, b := range a.current {
		out = append(out, *b)
		delete(a.current, inst)
	}
	return out
}

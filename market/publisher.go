package market

import (
	"sync"

	"lob-engine/engine"
)

// Stream names used for drop accounting.
const (
	StreamEvents = "events"
	StreamTrades = "trades"
	StreamQuotes = "quotes"
	StreamBars   = "bars"
)

// DropFunc is told about every item a full subscriber buffer rejected.
type DropFunc func(stream string)

// Publisher fans the engine event stream out to subscribers. Sends never
// block: a subscriber that falls behind loses items.
type Publisher struct {
	mu        sync.RWMutex
	buffer    int
	onDrop    DropFunc
	eventSubs []chan engine.Event
	tradeSubs []chan engine.Trade
	quoteSubs []chan Quote
	barSubs   []chan Bar
	closed    bool
}

// NewPublisher creates a publisher whose subscriptions buffer up to buffer
// items.
func NewPublisher(buffer int, onDrop DropFunc) *Publisher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Publisher{buffer: buffer, onDrop: onDrop}
}

func (p *Publisher) SubscribeEvents() <-chan engine.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan engine.Event, p.buffer)
	p.eventSubs = append(p.eventSubs, ch)
	return ch
}

func (p *Publisher) SubscribeTrades() <-chan engine.Trade {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan engine.Trade, p.buffer)
	p.tradeSubs = append(p.tradeSubs, ch)
	return ch
}

func (p *Publisher) SubscribeQuotes() <-chan Quote {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Quote, p.buffer)
	p.quoteSubs = append(p.quoteSubs, ch)
	return ch
}

func (p *Publisher) SubscribeBars() <-chan Bar {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Bar, p.buffer)
	p.barSubs = append(p.barSubs, ch)
	return ch
}

// OnEvent implements engine.Sink.
func (p *Publisher) OnEvent(ev engine.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	for _, ch := range p.eventSubs {
		offer(ch, ev, StreamEvents, p.onDrop)
	}
	if ev.Kind == engine.EventTrade && ev.Trade != nil {
		for _, ch := range p.tradeSubs {
			offer(ch, *ev.Trade, StreamTrades, p.onDrop)
		}
	}
}

func (p *Publisher) PublishQuote(q Quote) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	for _, ch := range p.quoteSubs {
		offer(ch, q, StreamQuotes, p.onDrop)
	}
}

func (p *Publisher) PublishBar(b Bar) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	for _, ch := range p.barSubs {
		offer(ch, b, StreamBars, p.onDrop)
	}
}

// Close closes every subscription channel. Later publications are ignored.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.eventSubs {
		close(ch)
	}
	for _, ch := range p.tradeSubs {
		close(ch)
	}
	for _, ch := range p.quoteSubs {
		close(ch)
	}
	for _, ch := range p.barSubs {
		close(ch)
	}
}

func offer[T any](ch chan T, v T, stream string, onDrop DropFunc) {
	select {
	case ch <- v:
	default:
		if onDrop != nil {
			onDrop(stream)
		}
	}
}

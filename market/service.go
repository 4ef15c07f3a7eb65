package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lob-engine/engine"
)

var two = decimal.NewFromInt(2)

// Service keeps the latest book snapshot per instrument and publishes a
// quote whenever the top of book changes.
type Service struct {
	pub   *Publisher
	now   func() time.Time
	mu    sync.RWMutex
	books map[string]engine.Snapshot
	quote map[string]Quote
	last  map[string]time.Time
}

func NewService(pub *Publisher) *Service {
	if pub == nil {
		pub = NewPublisher(1, nil)
	}
	return &Service{
		pub:   pub,
		now:   time.Now,
		books: make(map[string]engine.Snapshot),
		quote: make(map[string]Quote),
		last:  make(map[string]time.Time),
	}
}

// ObserveBook records a snapshot taken after a command.
func (s *Service) ObserveBook(snap engine.Snapshot) {
	q := Quote{Instrument: snap.Instrument, Time: snap.Time}
	if len(snap.Bids) > 0 {
		q.Bid, q.BidQty = snap.Bids[0].Price, snap.Bids[0].Quantity
	}
	if len(snap.Asks) > 0 {
		q.Ask, q.AskQty = snap.Asks[0].Price, snap.Asks[0].Quantity
	}

	s.mu.Lock()
	prev, seen := s.quote[snap.Instrument]
	s.books[snap.Instrument] = snap
	s.quote[snap.Instrument] = q
	s.last[snap.Instrument] = s.now()
	s.mu.Unlock()

	if !seen || !prev.sameTop(q) {
		s.pub.PublishQuote(q)
	}
}

// Quote returns the latest top of book.
func (s *Service) Quote(instrument string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quote[instrument]
	return q, ok
}

// Book returns the latest snapshot.
func (s *Service) Book(instrument string) (engine.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[instrument]
	return b, ok
}

// Mid returns the mid price in ticks; false unless both sides are present.
func (s *Service) Mid(instrument string) (decimal.Decimal, bool) {
	q, ok := s.Quote(instrument)
	if !ok || q.Bid == 0 || q.Ask == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(q.Bid).Add(decimal.NewFromInt(q.Ask)).Div(two), true
}

// Staleness returns the wall time since the last snapshot, or a year when
// none has been seen.
func (s *Service) Staleness(instrument string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.last[instrument]
	if !ok {
		return time.Hour * 24 * 365
	}
	return s.now().Sub(ts)
}

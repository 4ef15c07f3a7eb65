package market

import (
	"testing"
	"time"

	"lob-engine/engine"
)

func TestBarAggregator(t *testing.T) {
	pub := NewPublisher(4, nil)
	bars := pub.SubscribeBars()
	agg := NewBarAggregator(time.Minute, pub)
	base := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	trade := func(price, qty int64, at time.Duration) engine.Event {
		return engine.Event{Kind: engine.EventTrade, Trade: &engine.Trade{
			Instrument: "ACME", Price: price, Quantity: qty, Time: base.Add(at),
		}}
	}
	agg.OnEvent(trade(100, 1, 0))
	agg.OnEvent(trade(104, 2, 10*time.Second))
	agg.OnEvent(trade(98, 3, 50*time.Second))
	agg.OnEvent(engine.Event{Kind: engine.EventAccepted})
	if len(bars) != 0 {
		t.Fatalf("bar closed too early")
	}

	agg.OnEvent(trade(101, 1, 61*time.Second))
	got := <-bars
	want := Bar{Instrument: "ACME", Start: base, Open: 100, High: 104, Low: 98, Close: 98, Volume: 6, Trades: 3}
	if got != want {
		t.Fatalf("unexpected bar %+v", got)
	}

	cur, ok := agg.Current("ACME")
	if !ok || cur.Start != base.Add(time.Minute) || cur.Open != 101 {
		t.Fatalf("unexpected current bar %+v", cur)
	}
	if flushed := agg.Flush(); len(flushed) != 1 {
		t.Fatalf("expected one flushed bar, got %d", len(flushed))
	}
	if _, ok := agg.Current("ACME"); ok {
		t.Fatalf("expected no bar after flush")
	}
}

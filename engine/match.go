package engine

import (
	"lob-engine/book"
	"lob-engine/order"
)

// execute runs a live order through matching and disposes of the
// remainder. closing forces the remainder to be cancelled, as for orders
// executed at the close.
func (e *Engine) execute(o *order.Order, closing bool) {
	if o.TIF == order.FOK {
		if fillable := e.fillable(o); fillable < o.Remaining {
			e.terminate(o, order.StatusCancelled, EventCancelled, "fill-or-kill infeasible")
			return
		}
	}
	e.match(o)
	if o.Status.Terminal() {
		return
	}
	if o.Type.MarketLike() || o.TIF.Immediate() || closing {
		e.terminate(o, order.StatusCancelled, EventCancelled, "unmatched remainder")
		return
	}
	e.sideOf(o.Side).Insert(o)
	if o.Status != order.StatusPartiallyFilled {
		e.sm.Transition(o, order.StatusResting)
	}
}

// match trades o against the opposite side while the best opposite level
// is marketable. Every trade prints at the resting order's price.
func (e *Engine) match(o *order.Order) {
	opp := e.sideOf(o.Side.Opposite())
	traded := false
	for o.Remaining > 0 && !o.Status.Terminal() {
		lvl := opp.Best()
		if lvl == nil || !o.Marketable(lvl.Price) {
			break
		}
		head := lvl.Head()
		qty := min(o.Remaining, head.Remaining)
		price := lvl.Price
		opp.Fill(head, qty)
		o.Remaining -= qty
		traded = true
		e.recordTrade(o, head, price, qty)
		if head.Remaining == 0 {
			e.complete(head)
			continue
		}
		e.sm.Transition(head, order.StatusPartiallyFilled)
		e.emitOrder(EventPartiallyFilled, head, head.Remaining, "")
		e.groupExecuted(head, false)
	}
	if !traded || o.Status.Terminal() {
		return
	}
	if o.Remaining == 0 {
		e.complete(o)
		return
	}
	e.sm.Transition(o, order.StatusPartiallyFilled)
	e.emitOrder(EventPartiallyFilled, o, o.Remaining, "")
	e.groupExecuted(o, false)
}

// fillable simulates matching o against the current book without mutating
// it and returns the quantity that would execute. OCO siblings that the
// match would cancel on the way are not counted.
func (e *Engine) fillable(o *order.Order) int64 {
	var (
		total int64
		spent map[uint64]bool
	)
	e.sideOf(o.Side.Opposite()).Walk(func(l *book.Level) bool {
		if !o.Marketable(l.Price) {
			return false
		}
		l.Each(func(r *order.Order) bool {
			if spent[r.Group] {
				return true
			}
			take := min(o.Remaining-total, r.Remaining)
			total += take
			if g := e.groups[r.Group]; g != nil && g.kind == groupOCO &&
				(take == r.Remaining || e.policy.OCOTrigger == OCOOnAnyFill) {
				if spent == nil {
					spent = make(map[uint64]bool)
				}
				spent[r.Group] = true
			}
			return total < o.Remaining
		})
		return total < o.Remaining
	})
	return total
}

func (e *Engine) recordTrade(aggressor, resting *order.Order, price, qty int64) {
	e.nextTradeID++
	t := &Trade{
		ID:         e.nextTradeID,
		Instrument: e.instrument,
		Price:      price,
		Quantity:   qty,
		Aggressor:  aggressor.Side,
		Time:       e.now,
	}
	if aggressor.Side == order.Buy {
		t.BuyOrderID, t.SellOrderID = aggressor.ID, resting.ID
	} else {
		t.BuyOrderID, t.SellOrderID = resting.ID, aggressor.ID
	}
	e.lastTrade = price
	e.emit(Event{Kind: EventTrade, Side: aggressor.Side, Price: price, Quantity: qty, Trade: t})
}

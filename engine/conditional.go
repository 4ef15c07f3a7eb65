package engine

import (
	"lob-engine/book"
	"lob-engine/order"
)

// settle re-evaluates OSO releases, pegs and triggers until nothing changes
// or the pass budget is spent. Work left over is picked up by the next
// command.
func (e *Engine) settle() {
	for pass := 0; pass < e.policy.MaxConditionalPasses; pass++ {
		progressed := e.releaseLinked()
		if e.repeg() {
			progressed = true
		}
		if e.fireTriggers() {
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// fireTriggers converts every conditional order whose condition holds
// against the last trade price, in registration order.
func (e *Engine) fireTriggers() bool {
	if e.lastTrade == 0 {
		return false
	}
	var fired []*order.Order
	for _, o := range e.heldOrders(holdTrigger) {
		if o.Type.Trailing() {
			e.trail(o)
		}
		if e.triggered(o) {
			fired = append(fired, o)
		}
	}
	for _, o := range fired {
		// an earlier trigger may have cancelled it through its group
		if e.held[o.ID] != holdTrigger {
			continue
		}
		delete(e.held, o.ID)
		e.sm.Transition(o, order.StatusTriggered)
		o.Type = o.Type.Triggered()
		o.Seq = e.nextSeq()
		e.emitOrder(EventTriggered, o, o.Remaining, "")
		e.route(o)
	}
	return len(fired) > 0
}

func (e *Engine) triggered(o *order.Order) bool {
	if o.StopPrice == 0 {
		return false
	}
	last := e.lastTrade
	if o.Type == order.TypeMarketIfTouched {
		if o.Side == order.Buy {
			return last <= o.StopPrice
		}
		return last >= o.StopPrice
	}
	if o.Side == order.Buy {
		return last >= o.StopPrice
	}
	return last <= o.StopPrice
}

// trail ratchets a trailing stop toward the last trade price. The stop only
// moves in the order's favour: up for sells, down for buys.
func (e *Engine) trail(o *order.Order) {
	if e.lastTrade == 0 {
		return
	}
	next := order.TrailStop(o.Side, e.lastTrade, o.TrailPercent, e.constraints)
	if next <= 0 {
		return
	}
	switch {
	case o.StopPrice == 0:
		o.StopPrice = next
	case o.Side == order.Sell && next > o.StopPrice:
		o.StopPrice = next
	case o.Side == order.Buy && next < o.StopPrice:
		o.StopPrice = next
	}
}

// repeg moves pegged orders to their reference price. A move is a
// cancel+replace: the order takes a new sequence number and may trade.
func (e *Engine) repeg() bool {
	if len(e.pegs) == 0 {
		return false
	}
	moved := false
	for _, o := range ordered(e.pegs, nil) {
		if _, ok := e.live[o.ID]; !ok {
			continue
		}
		price, ok := e.pegPrice(o)
		if !ok {
			continue
		}
		parked := e.held[o.ID] == holdPeg
		if !parked && price == o.LimitPrice {
			continue
		}
		if parked {
			delete(e.held, o.ID)
		} else {
			e.sideOf(o.Side).Remove(o.ID)
		}
		o.LimitPrice = price
		o.Seq = e.nextSeq()
		if !parked {
			e.emitOrder(EventModified, o, o.Quantity, "repegged")
		}
		e.execute(o, false)
		moved = true
	}
	return moved
}

// pegPrice derives a peg's price from the best opposite price set by
// non-pegged orders: ask - offset for buys, bid + offset for sells, bounded
// by the optional cap.
func (e *Engine) pegPrice(o *order.Order) (int64, bool) {
	ref, ok := e.bestNonPeg(o.Side.Opposite())
	if !ok {
		return 0, false
	}
	var price int64
	if o.Side == order.Buy {
		price = ref - o.PegOffset
		if o.PegCap > 0 && price > o.PegCap {
			price = o.PegCap
		}
	} else {
		price = ref + o.PegOffset
		if o.PegCap > 0 && price < o.PegCap {
			price = o.PegCap
		}
	}
	if price <= 0 {
		return 0, false
	}
	return price, true
}

func (e *Engine) bestNonPeg(s order.Side) (int64, bool) {
	var (
		price int64
		found bool
	)
	e.sideOf(s).Walk(func(l *book.Level) bool {
		l.Each(func(o *order.Order) bool {
			found = o.Type != order.TypePegLimit
			return !found
		})
		price = l.Price
		return !found
	})
	return price, found
}

package engine

import "lob-engine/order"

type groupKind string

const (
	groupOCO groupKind = "OCO"
	groupOSO groupKind = "OSO"
)

// group links orders by id. Orders refer back to it through Order.Group;
// the group never owns its members. For OSO the first member is the
// primary.
type group struct {
	id      uint64
	kind    groupKind
	members []uint64
}

func (g *group) remove(id uint64) {
	for i, m := range g.members {
		if m == id {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return
		}
	}
}

func (e *Engine) newGroup(kind groupKind, members ...*order.Order) *group {
	e.nextGroupID++
	g := &group{id: e.nextGroupID, kind: kind}
	for _, o := range members {
		o.Group = g.id
		g.members = append(g.members, o.ID)
	}
	e.groups[g.id] = g
	return g
}

// ocoCrossing rejects a pair whose members could trade with each other.
// Members on opposite sides each need a price bound, buy below sell.
func ocoCrossing(a, b *order.Order) *RejectError {
	if a.Side == b.Side {
		return nil
	}
	buy, sell := a, b
	if buy.Side == order.Sell {
		buy, sell = b, a
	}
	bp, okBuy := priceBound(buy)
	sp, okSell := priceBound(sell)
	if !okBuy || !okSell {
		return rejectf(ErrValidation, "oco members on opposite sides need limit prices")
	}
	if bp >= sp {
		return rejectf(ErrValidation, "oco members cross: buy %d >= sell %d", bp, sp)
	}
	return nil
}

// ocoRepriced checks that moving o to price keeps it clear of its OCO
// sibling.
func (e *Engine) ocoRepriced(o *order.Order, price int64) *RejectError {
	g := e.groups[o.Group]
	if g == nil || g.kind != groupOCO {
		return nil
	}
	moved := *o
	moved.LimitPrice = price
	for _, id := range g.members {
		if sib, ok := e.live[id]; ok && id != o.ID {
			if rerr := ocoCrossing(&moved, sib); rerr != nil {
				return rerr
			}
		}
	}
	return nil
}

func priceBound(o *order.Order) (int64, bool) {
	switch {
	case o.Type.Priced():
		return o.LimitPrice, true
	case o.Type == order.TypePegLimit && o.PegCap != 0:
		return o.PegCap, true
	}
	return 0, false
}

// link attaches o to an OSO group as an inert linked order.
func (e *Engine) link(g *group, o *order.Order) {
	o.Group = g.id
	g.members = append(g.members, o.ID)
	e.hold(o, holdLinked)
}

// groupExecuted runs group rules after o traded. full is true when o is
// now completely filled.
func (e *Engine) groupExecuted(o *order.Order, full bool) {
	g := e.groups[o.Group]
	if g == nil {
		return
	}
	switch g.kind {
	case groupOCO:
		if !full && e.policy.OCOTrigger != OCOOnAnyFill {
			return
		}
		delete(e.groups, g.id)
		for _, id := range g.members {
			if sib, ok := e.live[id]; ok && id != o.ID {
				e.terminate(sib, order.StatusCancelled, EventCancelled, "oco sibling executed")
			}
		}
	case groupOSO:
		if !full || g.members[0] != o.ID {
			return
		}
		delete(e.groups, g.id)
		e.released = append(e.released, g.members[1:]...)
	}
}

// groupTerminated runs group rules after o was cancelled, expired or
// rejected.
func (e *Engine) groupTerminated(o *order.Order) {
	g := e.groups[o.Group]
	if g == nil {
		return
	}
	switch g.kind {
	case groupOCO:
		delete(e.groups, g.id)
	case groupOSO:
		if g.members[0] != o.ID {
			g.remove(o.ID)
			return
		}
		delete(e.groups, g.id)
		for _, id := range g.members[1:] {
			if child, ok := e.live[id]; ok {
				e.terminate(child, order.StatusCancelled, EventCancelled, "oso primary "+string(o.Status))
			}
		}
	}
}

// releaseLinked admits OSO children whose primary has filled.
func (e *Engine) releaseLinked() bool {
	if len(e.released) == 0 {
		return false
	}
	queue := e.released
	e.released = nil
	for _, id := range queue {
		if o, ok := e.live[id]; ok && e.held[id] == holdLinked {
			e.admit(o)
		}
	}
	return true
}

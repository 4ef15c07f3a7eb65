package book

import "lob-engine/order"

// entry links one resting order into its price level.
type entry struct {
	order *order.Order
	level *Level
	prev  *entry
	next  *entry
}

// Level is a FIFO queue of resting orders at a single price.
type Level struct {
	Price int64

	head *entry
	tail *entry

	// TotalQty is the sum of Remaining over the queued orders.
	TotalQty int64
	Count    int
}

func (l *Level) push(e *entry) {
	e.level = l
	if l.head == nil {
		l.head = e
		l.tail = e
	} else {
		l.tail.next = e
		e.prev = l.tail
		l.tail = e
	}
	l.TotalQty += e.order.Remaining
	l.Count++
}

func (l *Level) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev = nil
	e.next = nil
	e.level = nil
	l.TotalQty -= e.order.Remaining
	l.Count--
}

// Empty reports whether no order is queued.
func (l *Level) Empty() bool { return l.head == nil }

// Head returns the oldest order at this price.
func (l *Level) Head() *order.Order {
	if l.head == nil {
		return nil
	}
	return l.head.order
}

// Each visits orders in time priority until fn returns false.
func (l *Level) Each(fn func(*order.Order) bool) {
	for e := l.head; e != nil; e = e.next {
		if !fn(e.order) {
			return
		}
	}
}

// Orders returns the queued orders in time priority.
func (l *Level) Orders() []*order.Order {
	out := make([]*order.Order, 0, l.Count)
	l.Each(func(o *order.Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

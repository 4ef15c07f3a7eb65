package book

import (
	"fmt"

	"lob-engine/order"
)

// LevelView is an aggregated point-in-time view of one price level.
type LevelView struct {
	Price    int64
	Quantity int64
	Orders   int
}

// Side holds the resting orders of one side of one instrument, ordered by
// price priority: highest price first for bids, lowest first for asks.
type Side struct {
	side  order.Side
	tree  *rbTree
	index map[uint64]*entry
}

// NewSide creates an empty book side.
func NewSide(side order.Side) *Side {
	return &Side{
		side:  side,
		tree:  newRBTree(),
		index: make(map[uint64]*entry),
	}
}

// Side returns the order side this book side holds.
func (s *Side) Side() order.Side { return s.side }

// Insert appends o to the tail of the level at o.LimitPrice.
func (s *Side) Insert(o *order.Order) {
	if o.Side != s.side {
		panic(fmt.Sprintf("book: order %d side %s inserted into %s side", o.ID, o.Side, s.side))
	}
	if _, ok := s.index[o.ID]; ok {
		panic(fmt.Sprintf("book: order %d already resting", o.ID))
	}
	if o.LimitPrice <= 0 || o.Remaining <= 0 {
		panic(fmt.Sprintf("book: order %d cannot rest at %d with %d remaining", o.ID, o.LimitPrice, o.Remaining))
	}
	e := &entry{order: o}
	s.tree.GetOrCreate(o.LimitPrice).push(e)
	s.index[o.ID] = e
}

// Remove detaches the order with id from its level and drops the level if
// it became empty.
func (s *Side) Remove(id uint64) (*order.Order, bool) {
	e, ok := s.index[id]
	if !ok {
		return nil, false
	}
	lvl := e.level
	lvl.unlink(e)
	delete(s.index, id)
	if lvl.Empty() {
		s.tree.Delete(lvl.Price)
	}
	return e.order, true
}

// Contains reports whether an order with id is resting on this side.
func (s *Side) Contains(id uint64) bool {
	_, ok := s.index[id]
	return ok
}

// Fill decrements a resting order's remaining quantity in place, keeping
// its queue position. The caller removes the order once it is exhausted.
func (s *Side) Fill(o *order.Order, qty int64) {
	e, ok := s.index[o.ID]
	if !ok {
		panic(fmt.Sprintf("book: fill of non-resting order %d", o.ID))
	}
	if qty <= 0 || qty > o.Remaining {
		panic(fmt.Sprintf("book: fill %d out of range for order %d with %d remaining", qty, o.ID, o.Remaining))
	}
	o.Remaining -= qty
	e.level.TotalQty -= qty
}

// Reduce lowers a resting order's remaining quantity without touching its
// queue position.
func (s *Side) Reduce(o *order.Order, remaining int64) {
	e, ok := s.index[o.ID]
	if !ok {
		panic(fmt.Sprintf("book: reduce of non-resting order %d", o.ID))
	}
	if remaining <= 0 || remaining > o.Remaining {
		panic(fmt.Sprintf("book: reduce order %d from %d to %d", o.ID, o.Remaining, remaining))
	}
	e.level.TotalQty -= o.Remaining - remaining
	o.Remaining = remaining
}

// Best returns the best level or nil.
func (s *Side) Best() *Level {
	if s.side == order.Buy {
		return s.tree.Max()
	}
	return s.tree.Min()
}

// BestPrice returns the best price and whether the side is non-empty.
func (s *Side) BestPrice() (int64, bool) {
	lvl := s.Best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// PeekBest returns the top-priority order at the best price or nil.
func (s *Side) PeekBest() *order.Order {
	lvl := s.Best()
	if lvl == nil {
		return nil
	}
	return lvl.Head()
}

// Level returns the level at price or nil.
func (s *Side) Level(price int64) *Level {
	return s.tree.Find(price)
}

// Walk visits levels best-first until fn returns false.
func (s *Side) Walk(fn func(*Level) bool) {
	if s.side == order.Buy {
		s.tree.Descend(fn)
		return
	}
	s.tree.Ascend(fn)
}

// Depth returns up to n levels best-first. n <= 0 returns every level.
func (s *Side) Depth(n int) []LevelView {
	out := make([]LevelView, 0)
	s.Walk(func(l *Level) bool {
		if n > 0 && len(out) >= n {
			return false
		}
		out = append(out, LevelView{Price: l.Price, Quantity: l.TotalQty, Orders: l.Count})
		return true
	})
	return out
}

// VolumeAt returns the aggregate resting quantity at price.
func (s *Side) VolumeAt(price int64) int64 {
	lvl := s.tree.Find(price)
	if lvl == nil {
		return 0
	}
	return lvl.TotalQty
}

// Len returns the number of resting orders.
func (s *Side) Len() int { return len(s.index) }

// Levels returns the number of price levels.
func (s *Side) Levels() int { return s.tree.Len() }

// Orders returns every resting order, best price first and in time
// priority within a level.
func (s *Side) Orders() []*order.Order {
	out := make([]*order.Order, 0, len(s.index))
	s.Walk(func(l *Level) bool {
		out = append(out, l.Orders()...)
		return true
	})
	return out
}

// Verify checks the side's internal consistency and returns the first
// violation found.
func (s *Side) Verify() error {
	count := 0
	var err error
	s.Walk(func(l *Level) bool {
		var sum int64
		n := 0
		for e := l.head; e != nil; e = e.next {
			o := e.order
			if o.Remaining <= 0 || o.Remaining > o.Quantity {
				err = fmt.Errorf("order %d remaining %d out of range", o.ID, o.Remaining)
				return false
			}
			if o.LimitPrice != l.Price || e.level != l {
				err = fmt.Errorf("order %d linked to level %d at price %d", o.ID, l.Price, o.LimitPrice)
				return false
			}
			if s.index[o.ID] != e {
				err = fmt.Errorf("order %d missing from index", o.ID)
				return false
			}
			sum += o.Remaining
			n++
		}
		if n == 0 {
			err = fmt.Errorf("empty level %d kept in tree", l.Price)
			return false
		}
		if sum != l.TotalQty || n != l.Count {
			err = fmt.Errorf("level %d aggregate %d/%d, want %d/%d", l.Price, l.TotalQty, l.Count, sum, n)
			return false
		}
		count += n
		return true
	})
	if err != nil {
		return err
	}
	if count != len(s.index) {
		return fmt.Errorf("index holds %d orders, levels hold %d", len(s.index), count)
	}
	return nil
}

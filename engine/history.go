package engine

import "lob-engine/order"

// history keeps snapshots of the most recent terminal orders so status
// queries and cancels can tell a finished order from an unknown id.
type history struct {
	limit  int
	ids    []uint64
	orders map[uint64]order.Order
}

func newHistory(limit int) *history {
	return &history{limit: limit, orders: make(map[uint64]order.Order)}
}

func (h *history) add(o order.Order) {
	if h.limit <= 0 {
		return
	}
	if _, ok := h.orders[o.ID]; !ok {
		h.ids = append(h.ids, o.ID)
	}
	h.orders[o.ID] = o
	h.trim()
}

func (h *history) get(id uint64) (order.Order, bool) {
	o, ok := h.orders[id]
	return o, ok
}

func (h *history) resize(limit int) {
	h.limit = limit
	h.trim()
}

func (h *history) trim() {
	for len(h.ids) > 0 && len(h.ids) > h.limit {
		delete(h.orders, h.ids[0])
		h.ids = h.ids[1:]
	}
}

package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lob-engine/book"
	"lob-engine/order"
)

func firstOf(events []Event, kind EventKind) (Event, bool) {
	for _, ev := range events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return Event{}, false
}

func tradePrices(res Result) []int64 {
	var out []int64
	for _, tr := range res.Trades() {
		out = append(out, tr.Price)
	}
	return out
}

func TestStopLossTriggersOnTrade(t *testing.T) {
	e := newTestEngine(t)
	mustSubmit(t, e, limitOrder(order.Buy, 95, 5))
	b2 := mustSubmit(t, e, limitOrder(order.Buy, 94, 20)).OrderID()

	stop := NewOrder{Side: order.Sell, Type: order.TypeStopLoss, StopPrice: 95, Quantity: 10}
	res := mustSubmit(t, e, stop)
	stopID := res.OrderID()
	assert.Equal(t, []EventKind{EventAccepted}, kinds(res.Events))
	assert.Equal(t, order.StatusPending, statusOf(t, e, stopID))

	res = mustSubmit(t, e, marketOrder(order.Sell, 5))
	assert.Equal(t, []int64{95, 94}, tradePrices(res))
	trig, ok := firstOf(res.Events, EventTriggered)
	require.True(t, ok)
	assert.Equal(t, stopID, trig.OrderID)
	assert.Equal(t, order.TypeMarket, trig.Type)
	assert.Equal(t, order.StatusFilled, statusOf(t, e, stopID))
	assert.Equal(t, order.StatusPartiallyFilled, statusOf(t, e, b2))
	assert.Equal(t, int64(10), e.VolumeAt(order.Buy, 94))
}

func TestStopLimitRestsAfterTrigger(t *testing.T) {
	e := newTestEngine(t)
	mustSubmit(t, e, limitOrder(order.Sell, 105, 5))
	mustSubmit(t, e, limitOrder(order.Sell, 107, 10))

	stop := NewOrder{Side: order.Buy, Type: order.TypeStopLimit, StopPrice: 105, LimitPrice: 106, Quantity: 10}
	id := mustSubmit(t, e, stop).OrderID()

	res := mustSubmit(t, e, marketOrder(order.Buy, 5))
	assert.Equal(t, []int64{105}, tradePrices(res))
	trig, ok := firstOf(res.Events, EventTriggered)
	require.True(t, ok)
	assert.Equal(t, order.TypeLimit, trig.Type)
	assert.Equal(t, order.StatusResting, statusOf(t, e, id))
	assert.Equal(t, []book.LevelView{{Price: 106, Quantity: 10, Orders: 1}}, e.Depth(order.Buy, 0))
}

func TestStopLimitTradesAfterTrigger(t *testing.T) {
	e := newTestEngine(t)
	mustSubmit(t, e, limitOrder(order.Sell, 105, 5))
	mustSubmit(t, e, limitOrder(order.Sell, 106, 10))
	mustSubmit(t, e, limitOrder(order.Sell, 107, 10))

	stop := NewOrder{Side: order.Buy, Type: order.TypeStopLimit, StopPrice: 105, LimitPrice: 106, Quantity: 10}
	id := mustSubmit(t, e, stop).OrderID()

	res := mustSubmit(t, e, marketOrder(order.Buy, 5))
	assert.Equal(t, []int64{105, 106}, tradePrices(res))
	assert.Equal(t, order.StatusFilled, statusOf(t, e, id))
	assert.Equal(t, []book.LevelView{{Price: 107, Quantity: 10, Orders: 1}}, e.Depth(order.Sell, 0))
}

func TestStopTriggersImmediatelyOnSubmit(t *testing.T) {
	e := newTestEngine(t)
	printTrade(t, e, 100)

	res := mustSubmit(t, e, NewOrder{Side: order.Buy, Type: order.TypeStopLoss, StopPrice: 99, Quantity: 5})
	assert.Equal(t, []EventKind{EventAccepted, EventTriggered, EventCancelled}, kinds(res.Events))
	assert.Equal(t, order.StatusCancelled, statusOf(t, e, res.OrderID()))
}

func TestMarketIfTouched(t *testing.T) {
	e := newTestEngine(t)
	bid := mustSubmit(t, e, limitOrder(order.Buy, 104, 5)).OrderID()
	id := mustSubmit(t, e, NewOrder{Side: order.Sell, Type: order.TypeMarketIfTouched, StopPrice: 105, Quantity: 5}).OrderID()
	assert.Equal(t, order.StatusPending, statusOf(t, e, id))

	res := printTrade(t, e, 105)
	assert.Equal(t, []int64{105, 104}, tradePrices(res))
	assert.Equal(t, order.StatusFilled, statusOf(t, e, id))
	assert.Equal(t, order.StatusFilled, statusOf(t, e, bid))
}

func TestTrailingStopRatchets(t *testing.T) {
	e := newTestEngine(t)
	bid := mustSubmit(t, e, limitOrder(order.Buy, 50, 10)).OrderID()
	id := mustSubmit(t, e, NewOrder{
		Side:         order.Sell,
		Type:         order.TypeTrailingStop,
		TrailPercent: decimal.NewFromInt(10),
		Quantity:     10,
	}).OrderID()

	stopPrice := func() int64 {
		o, ok := e.Order(id)
		require.True(t, ok)
		return o.StopPrice
	}
	assert.Zero(t, stopPrice())

	printTrade(t, e, 100)
	assert.Equal(t, int64(90), stopPrice())
	printTrade(t, e, 120)
	assert.Equal(t, int64(108), stopPrice())
	printTrade(t, e, 110)
	assert.Equal(t, int64(108), stopPrice())
	assert.Equal(t, order.StatusPending, statusOf(t, e, id))

	res := printTrade(t, e, 108)
	assert.Equal(t, []int64{108, 50}, tradePrices(res))
	assert.Equal(t, order.StatusFilled, statusOf(t, e, id))
	assert.Equal(t, order.StatusFilled, statusOf(t, e, bid))
}

func TestModifyAndCancelHeldStop(t *testing.T) {
	e := newTestEngine(t)
	id := mustSubmit(t, e, NewOrder{Side: order.Sell, Type: order.TypeStopLoss, StopPrice: 95, Quantity: 10}).OrderID()

	res, err := e.Modify(ModifyOrder{OrderID: id, StopPrice: 90, Quantity: 12})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventModified}, kinds(res.Events))
	o, _ := e.Order(id)
	assert.Equal(t, int64(90), o.StopPrice)
	assert.Equal(t, int64(12), o.Remaining)

	res, err = e.Cancel(CancelOrder{OrderID: id})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventCancelled}, kinds(res.Events))
	assert.Zero(t, e.LiveOrders())
}

func TestPegRepricesAndLosesPriority(t *testing.T) {
	e := newTestEngine(t)
	mustSubmit(t, e, limitOrder(order.Sell, 105, 10))
	peg := mustSubmit(t, e, NewOrder{Side: order.Buy, Type: order.TypePegLimit, PegOffset: 2, Quantity: 10}).OrderID()
	assert.Equal(t, order.StatusResting, statusOf(t, e, peg))
	bid, _ := e.BestBid()
	assert.Equal(t, int64(103), bid)

	limit := mustSubmit(t, e, limitOrder(order.Buy, 102, 5)).OrderID()

	res := mustSubmit(t, e, limitOrder(order.Sell, 104, 10))
	mod, ok := firstOf(res.Events, EventModified)
	require.True(t, ok)
	assert.Equal(t, peg, mod.OrderID)
	assert.Equal(t, int64(102), mod.Price)
	assert.Equal(t, "repegged", mod.Reason)
	assert.Equal(t, []book.LevelView{{Price: 102, Quantity: 15, Orders: 2}}, e.Depth(order.Buy, 0))

	res = mustSubmit(t, e, marketOrder(order.Sell, 5))
	require.Len(t, res.Trades(), 1)
	assert.Equal(t, limit, res.Trades()[0].BuyOrderID)
}

func TestPegParkedUntilReferenceExists(t *testing.T) {
	e := newTestEngine(t)
	peg := mustSubmit(t, e, NewOrder{Side: order.Buy, Type: order.TypePegLimit, PegOffset: 1, Quantity: 10}).OrderID()
	assert.Equal(t, order.StatusPending, statusOf(t, e, peg))
	assert.Empty(t, e.Depth(order.Buy, 0))

	res := mustSubmit(t, e, limitOrder(order.Sell, 100, 10))
	_, modified := firstOf(res.Events, EventModified)
	assert.False(t, modified)
	assert.Equal(t, order.StatusResting, statusOf(t, e, peg))
	assert.Equal(t, []book.LevelView{{Price: 99, Quantity: 10, Orders: 1}}, e.Depth(order.Buy, 0))
}

func TestPegCapBoundsPrice(t *testing.T) {
	e := newTestEngine(t)
	mustSubmit(t, e, limitOrder(order.Sell, 105, 10))
	peg := mustSubmit(t, e, NewOrder{Side: order.Buy, Type: order.TypePegLimit, LimitPrice: 101, Quantity: 10}).OrderID()

	o, ok := e.Order(peg)
	require.True(t, ok)
	assert.Equal(t, int64(101), o.LimitPrice)
	assert.Equal(t, int64(101), o.PegCap)
	assert.Equal(t, order.StatusResting, o.Status)
}

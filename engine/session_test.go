package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lob-engine/order"
)

func TestOpeningAuctionOrders(t *testing.T) {
	e := newTestEngine(t, WithPhase(PhasePreOpen))

	res, err := e.Submit(limitOrder(order.Buy, 100, 10))
	assert.True(t, errors.Is(err, ErrMarketClosed))
	assert.Equal(t, "market_closed", res.Events[0].Code)

	loo := mustSubmit(t, e, NewOrder{Side: order.Sell, Type: order.TypeLimitOnOpen, LimitPrice: 100, Quantity: 10}).OrderID()
	moo := mustSubmit(t, e, NewOrder{Side: order.Buy, Type: order.TypeMarketOnOpen, Quantity: 5}).OrderID()
	assert.Equal(t, order.StatusPending, statusOf(t, e, loo))
	assert.Equal(t, order.StatusPending, statusOf(t, e, moo))
	assert.Empty(t, e.Depth(order.Sell, 0))

	res, err = e.Session(SessionEvent{Kind: SessionOpen, Time: t0})
	require.NoError(t, err)
	require.Len(t, res.Trades(), 1)
	assert.Equal(t, int64(100), res.Trades()[0].Price)
	assert.Equal(t, int64(5), res.Trades()[0].Quantity)
	assert.Equal(t, order.StatusFilled, statusOf(t, e, moo))
	assert.Equal(t, order.StatusPartiallyFilled, statusOf(t, e, loo))
	assert.Equal(t, PhaseOpen, e.Phase())

	_, err = e.Submit(NewOrder{Side: order.Buy, Type: order.TypeMarketOnOpen, Quantity: 5})
	assert.True(t, errors.Is(err, ErrMarketClosed))
}

func TestAtTheOpen(t *testing.T) {
	e := newTestEngine(t, WithPhase(PhasePreOpen))
	mustSubmit(t, e, NewOrder{Side: order.Sell, Type: order.TypeLimitOnOpen, LimitPrice: 100, Quantity: 10})
	queued := mustSubmit(t, e, NewOrder{Side: order.Buy, Type: order.TypeAtTheOpen, Quantity: 4}).OrderID()
	assert.Equal(t, order.StatusPending, statusOf(t, e, queued))

	_, err := e.Session(SessionEvent{Kind: SessionOpen})
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, statusOf(t, e, queued))

	res := mustSubmit(t, e, NewOrder{Side: order.Buy, Type: order.TypeAtTheOpen, Quantity: 4})
	assert.Equal(t, []int64{100}, tradePrices(res))
	assert.Equal(t, order.StatusFilled, statusOf(t, e, res.OrderID()))
	assert.Equal(t, int64(2), e.VolumeAt(order.Sell, 100))
}

func TestClosingAuctionOrders(t *testing.T) {
	e := newTestEngine(t)
	bid := mustSubmit(t, e, limitOrder(order.Buy, 100, 10)).OrderID()
	moc := mustSubmit(t, e, NewOrder{Side: order.Sell, Type: order.TypeMarketOnClose, Quantity: 4}).OrderID()
	loc := mustSubmit(t, e, NewOrder{Side: order.Sell, Type: order.TypeLimitOnClose, LimitPrice: 100, Quantity: 10}).OrderID()
	assert.Equal(t, order.StatusPending, statusOf(t, e, moc))
	assert.Equal(t, order.StatusPending, statusOf(t, e, loc))
	assert.Empty(t, e.Depth(order.Sell, 0))

	res, err := e.Session(SessionEvent{Kind: SessionClose, Time: t0.Add(6 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 100}, tradePrices(res))
	assert.Equal(t, order.StatusFilled, statusOf(t, e, bid))
	assert.Equal(t, order.StatusFilled, statusOf(t, e, moc))
	assert.Equal(t, order.StatusCancelled, statusOf(t, e, loc))
	assert.Equal(t, PhaseClosed, e.Phase())
	assert.Zero(t, e.LiveOrders())
}

func TestCloseExpiresUnreleasedOpenQueue(t *testing.T) {
	e := newTestEngine(t, WithPhase(PhasePreOpen))
	moo := mustSubmit(t, e, NewOrder{Side: order.Buy, Type: order.TypeMarketOnOpen, Quantity: 5}).OrderID()

	res, err := e.Session(SessionEvent{Kind: SessionClose})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventExpired}, kinds(res.Events))
	assert.Equal(t, order.StatusExpired, statusOf(t, e, moo))
}

func TestSessionEventValidation(t *testing.T) {
	e := newTestEngine(t)
	tick(t, e, t0.Add(time.Hour))

	_, err := e.Session(SessionEvent{Kind: SessionClockTick, Time: t0})
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, t0.Add(time.Hour), e.Now())

	_, err = e.Session(SessionEvent{Kind: SessionClockTick})
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = e.Session(SessionEvent{Kind: SessionOpen})
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = e.Session(SessionEvent{Kind: "HALT", Time: t0.Add(2 * time.Hour)})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = e.Session(SessionEvent{Kind: SessionClose})
	require.NoError(t, err)
	_, err = e.Session(SessionEvent{Kind: SessionClose})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestModifyRepriceNeedsOpenSession(t *testing.T) {
	e := newTestEngine(t)
	gtc := limitOrder(order.Buy, 100, 10)
	gtc.TIF = order.GTC
	id := mustSubmit(t, e, gtc).OrderID()

	_, err := e.Session(SessionEvent{Kind: SessionClose})
	require.NoError(t, err)

	_, err = e.Modify(ModifyOrder{OrderID: id, Price: 101})
	assert.True(t, errors.Is(err, ErrMarketClosed))
	_, err = e.Modify(ModifyOrder{OrderID: id, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.VolumeAt(order.Buy, 100))
}

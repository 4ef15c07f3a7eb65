package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lob-engine/order"
)

func newResting(id uint64, side order.Side, price, qty int64) *order.Order {
	return &order.Order{
		ID:         id,
		Side:       side,
		Type:       order.TypeLimit,
		LimitPrice: price,
		Quantity:   qty,
		Remaining:  qty,
		Status:     order.StatusResting,
	}
}

func TestSideBestPriceOrdering(t *testing.T) {
	bids := NewSide(order.Buy)
	asks := NewSide(order.Sell)
	for i, p := range []int64{100, 105, 95} {
		bids.Insert(newResting(uint64(i+1), order.Buy, p, 10))
		asks.Insert(newResting(uint64(i+10), order.Sell, p+20, 10))
	}
	bb, ok := bids.BestPrice()
	require.True(t, ok)
	assert.Equal(t, int64(105), bb)
	ba, ok := asks.BestPrice()
	require.True(t, ok)
	assert.Equal(t, int64(115), ba)

	var bidPrices []int64
	for _, lv := range bids.Depth(0) {
		bidPrices = append(bidPrices, lv.Price)
	}
	assert.Equal(t, []int64{105, 100, 95}, bidPrices)
	assert.Len(t, asks.Depth(2), 2)
	assert.Equal(t, int64(115), asks.Depth(2)[0].Price)
}

func TestSideFIFOWithinLevel(t *testing.T) {
	s := NewSide(order.Sell)
	s.Insert(newResting(1, order.Sell, 100, 5))
	s.Insert(newResting(2, order.Sell, 100, 7))
	s.Insert(newResting(3, order.Sell, 100, 9))

	assert.Equal(t, uint64(1), s.PeekBest().ID)
	assert.Equal(t, int64(21), s.VolumeAt(100))

	// partial fill keeps queue position
	head := s.PeekBest()
	s.Fill(head, 3)
	assert.Equal(t, uint64(1), s.PeekBest().ID)
	assert.Equal(t, int64(18), s.VolumeAt(100))

	_, ok := s.Remove(2)
	require.True(t, ok)
	ids := []uint64{}
	for _, o := range s.Level(100).Orders() {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []uint64{1, 3}, ids)
	assert.NoError(t, s.Verify())
}

func TestSideRemoveDropsEmptyLevel(t *testing.T) {
	s := NewSide(order.Buy)
	s.Insert(newResting(1, order.Buy, 100, 5))
	s.Insert(newResting(2, order.Buy, 99, 5))
	_, ok := s.Remove(1)
	require.True(t, ok)
	assert.Nil(t, s.Level(100))
	assert.Equal(t, 1, s.Levels())
	bb, _ := s.BestPrice()
	assert.Equal(t, int64(99), bb)

	_, ok = s.Remove(1)
	assert.False(t, ok)
	_, ok = s.Remove(2)
	require.True(t, ok)
	_, ok = s.BestPrice()
	assert.False(t, ok)
	assert.Nil(t, s.PeekBest())
}

func TestSideReduceKeepsPosition(t *testing.T) {
	s := NewSide(order.Buy)
	first := newResting(1, order.Buy, 100, 10)
	s.Insert(first)
	s.Insert(newResting(2, order.Buy, 100, 10))
	s.Reduce(first, 4)
	assert.Equal(t, uint64(1), s.PeekBest().ID)
	assert.Equal(t, int64(14), s.VolumeAt(100))
	assert.NoError(t, s.Verify())
}

func TestSideInsertPanicsOnDefects(t *testing.T) {
	s := NewSide(order.Buy)
	s.Insert(newResting(1, order.Buy, 100, 10))
	assert.Panics(t, func() { s.Insert(newResting(1, order.Buy, 101, 10)) })
	assert.Panics(t, func() { s.Insert(newResting(2, order.Sell, 101, 10)) })
	assert.Panics(t, func() { s.Insert(newResting(3, order.Buy, 0, 10)) })
	assert.Panics(t, func() { s.Fill(s.PeekBest(), 11) })
}

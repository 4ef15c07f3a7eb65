package market

import "time"

// Quote is the top of book of one instrument. A zero price means the side
// is empty.
type Quote struct {
	Instrument string
	Bid        int64
	BidQty     int64
	Ask        int64
	AskQty     int64
	Time       time.Time
}

// Spread returns ask - bid, or 0 unless both sides are present.
func (q Quote) Spread() int64 {
	if q.Bid == 0 || q.Ask == 0 {
		return 0
	}
	return q.Ask - q.Bid
}

func (q Quote) sameTop(o Quote) bool {
	return q.Bid == o.Bid && q.BidQty == o.BidQty && q.Ask == o.Ask && q.AskQty == o.AskQty
}

package order

import "fmt"

// Constraints describes the price grid and size limits of one instrument.
// Prices and quantities are integers in the instrument's minimal units;
// Precision is the number of decimal places one price unit represents.
type Constraints struct {
	TickSize  int64
	LotSize   int64
	MinQty    int64
	MaxQty    int64
	MinPrice  int64
	MaxPrice  int64
	Precision int32
}

// ValidatePrice checks price against the tick grid and the price band.
func (c Constraints) ValidatePrice(price int64) error {
	if price <= 0 {
		return fmt.Errorf("price %d must be > 0", price)
	}
	if c.TickSize > 0 && price%c.TickSize != 0 {
		return fmt.Errorf("price %s not aligned to tickSize %s",
			FormatPrice(price, c.Precision), FormatPrice(c.TickSize, c.Precision))
	}
	if c.MinPrice > 0 && price < c.MinPrice {
		return fmt.Errorf("price %s < minPrice %s",
			FormatPrice(price, c.Precision), FormatPrice(c.MinPrice, c.Precision))
	}
	if c.MaxPrice > 0 && price > c.MaxPrice {
		return fmt.Errorf("price %s > maxPrice %s",
			FormatPrice(price, c.Precision), FormatPrice(c.MaxPrice, c.Precision))
	}
	return nil
}

// ValidateQty checks qty against the lot size and the size limits.
func (c Constraints) ValidateQty(qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("qty %d must be > 0", qty)
	}
	if c.LotSize > 0 && qty%c.LotSize != 0 {
		return fmt.Errorf("qty %d not aligned to lotSize %d", qty, c.LotSize)
	}
	if c.MinQty > 0 && qty < c.MinQty {
		return fmt.Errorf("qty %d < minQty %d", qty, c.MinQty)
	}
	if c.MaxQty > 0 && qty > c.MaxQty {
		return fmt.Errorf("qty %d > maxQty %d", qty, c.MaxQty)
	}
	return nil
}

// Validate checks a price/qty pair. A zero price skips the price checks,
// which is how market orders are validated.
func (c Constraints) Validate(price, qty int64) error {
	if price != 0 {
		if err := c.ValidatePrice(price); err != nil {
			return err
		}
	}
	return c.ValidateQty(qty)
}

// RoundDown snaps price down to the tick grid.
func (c Constraints) RoundDown(price int64) int64 {
	if c.TickSize <= 1 {
		return price
	}
	r := price % c.TickSize
	if r < 0 {
		r += c.TickSize
	}
	return price - r
}

// RoundUp snaps price up to the tick grid.
func (c Constraints) RoundUp(price int64) int64 {
	down := c.RoundDown(price)
	if down == price {
		return price
	}
	return down + c.TickSize
}

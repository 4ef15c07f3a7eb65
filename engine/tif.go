package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"lob-engine/order"
)

var hundredPct = decimal.NewFromInt(100)

func auctionType(t order.Type) bool {
	switch t {
	case order.TypeMarketOnOpen, order.TypeLimitOnOpen, order.TypeMarketOnClose,
		order.TypeLimitOnClose, order.TypeAtTheOpen:
		return true
	}
	return false
}

// validate checks a new order against the instrument, its type and TIF
// rules, and the session phase. It never mutates engine state.
func (e *Engine) validate(n NewOrder, o *order.Order) *RejectError {
	if n.Instrument != "" && n.Instrument != e.instrument {
		return rejectf(ErrValidation, "instrument %s routed to %s book", n.Instrument, e.instrument)
	}
	if !o.Side.Valid() {
		return rejectf(ErrValidation, "invalid side %q", o.Side)
	}
	if !o.Type.Valid() {
		return rejectf(ErrValidation, "invalid order type %q", o.Type)
	}
	if !o.TIF.Valid() {
		return rejectf(ErrValidation, "invalid time in force %q", o.TIF)
	}
	if err := e.constraints.ValidateQty(o.Quantity); err != nil {
		return rejectf(ErrValidation, "%v", err)
	}

	switch {
	case o.Type.Priced():
		if n.LimitPrice == 0 {
			return rejectf(ErrValidation, "missing limit price for %s", o.Type)
		}
		if err := e.constraints.ValidatePrice(n.LimitPrice); err != nil {
			return rejectf(ErrValidation, "limit %v", err)
		}
	case o.Type == order.TypePegLimit:
		if n.LimitPrice != 0 {
			if err := e.constraints.ValidatePrice(n.LimitPrice); err != nil {
				return rejectf(ErrValidation, "peg cap %v", err)
			}
		}
		if o.PegOffset < 0 {
			return rejectf(ErrValidation, "peg offset %d must be >= 0", o.PegOffset)
		}
		if tick := e.constraints.TickSize; tick > 0 && o.PegOffset%tick != 0 {
			return rejectf(ErrValidation, "peg offset %d not aligned to tickSize %d", o.PegOffset, tick)
		}
		if o.TIF.Immediate() {
			return rejectf(ErrValidation, "peg orders cannot be %s", o.TIF)
		}
	case n.LimitPrice != 0:
		return rejectf(ErrValidation, "limit price not allowed for %s", o.Type)
	}
	if o.Type != order.TypePegLimit && o.PegOffset != 0 {
		return rejectf(ErrValidation, "peg offset not allowed for %s", o.Type)
	}

	switch {
	case o.Type.Trailing():
		if !o.TrailPercent.IsPositive() || !o.TrailPercent.LessThan(hundredPct) {
			return rejectf(ErrValidation, "trail percent %s must be in (0, 100)", o.TrailPercent)
		}
		if o.StopPrice != 0 {
			if err := e.constraints.ValidatePrice(o.StopPrice); err != nil {
				return rejectf(ErrValidation, "stop %v", err)
			}
		}
	case o.Type.Conditional():
		if o.StopPrice == 0 {
			return rejectf(ErrValidation, "missing stop price for %s", o.Type)
		}
		if err := e.constraints.ValidatePrice(o.StopPrice); err != nil {
			return rejectf(ErrValidation, "stop %v", err)
		}
	case o.StopPrice != 0:
		return rejectf(ErrValidation, "stop price not allowed for %s", o.Type)
	}
	if !o.Type.Trailing() && !o.TrailPercent.IsZero() {
		return rejectf(ErrValidation, "trail percent not allowed for %s", o.Type)
	}

	if o.Type == order.TypeMarket && (o.TIF == order.GTC || o.TIF == order.GTD) {
		return rejectf(ErrValidation, "%s orders cannot be %s", o.Type, o.TIF)
	}
	if auctionType(o.Type) && o.TIF != order.DAY && !o.TIF.Immediate() {
		return rejectf(ErrValidation, "%s orders must be DAY, IOC or FOK", o.Type)
	}

	switch o.TIF {
	case order.GTD:
		if o.ExpireAt.IsZero() {
			return rejectf(ErrValidation, "missing expiry for GTD")
		}
		if !o.ExpireAt.After(e.now) {
			return rejectf(ErrValidation, "expiry %s is not after %s",
				o.ExpireAt.Format(time.RFC3339Nano), e.now.Format(time.RFC3339Nano))
		}
	case order.GAT:
		if o.ActivateAt.IsZero() {
			return rejectf(ErrValidation, "missing activation time for GAT")
		}
	}
	if !o.ExpireAt.IsZero() && o.TIF != order.GTD {
		return rejectf(ErrValidation, "expiry only allowed for GTD")
	}
	if !o.ActivateAt.IsZero() && o.TIF != order.GAT {
		return rejectf(ErrValidation, "activation time only allowed for GAT")
	}
	return e.checkPhase(o)
}

// validateMember validates an order submitted as part of a new group.
func (e *Engine) validateMember(n NewOrder, o *order.Order) *RejectError {
	if n.Group != 0 {
		return rejectf(ErrValidation, "group member cannot reference group %d", n.Group)
	}
	return e.validate(n, o)
}

// checkPhase applies the session rules: only auction and GAT orders are
// accepted outside the open session.
func (e *Engine) checkPhase(o *order.Order) *RejectError {
	switch {
	case o.Type == order.TypeMarketOnOpen || o.Type == order.TypeLimitOnOpen:
		if e.phase == PhaseOpen {
			return rejectf(ErrMarketClosed, "%s only accepted before the open", o.Type)
		}
	case o.Type == order.TypeMarketOnClose || o.Type == order.TypeLimitOnClose:
	case o.Type == order.TypeAtTheOpen:
	case o.TIF == order.GAT:
	case e.phase != PhaseOpen:
		return rejectf(ErrMarketClosed, "session is %s", e.phase)
	}
	return nil
}

func (e *Engine) validateModify(m ModifyOrder, o *order.Order) *RejectError {
	if m.Quantity == 0 && m.Price == 0 && m.StopPrice == 0 {
		return rejectf(ErrValidation, "nothing to modify")
	}
	if m.Quantity != 0 {
		if m.Quantity <= o.Filled() {
			return rejectf(ErrValidation, "quantity %d must exceed filled %d", m.Quantity, o.Filled())
		}
		if err := e.constraints.ValidateQty(m.Quantity); err != nil {
			return rejectf(ErrValidation, "%v", err)
		}
	}
	if m.Price != 0 {
		if !o.Type.Priced() {
			return rejectf(ErrValidation, "price modification not supported for %s", o.Type)
		}
		if err := e.constraints.ValidatePrice(m.Price); err != nil {
			return rejectf(ErrValidation, "limit %v", err)
		}
		if rerr := e.ocoRepriced(o, m.Price); rerr != nil {
			return rerr
		}
	}
	if m.StopPrice != 0 {
		if e.held[o.ID] != holdTrigger {
			return rejectf(ErrValidation, "stop price modification needs an untriggered conditional order")
		}
		if err := e.constraints.ValidatePrice(m.StopPrice); err != nil {
			return rejectf(ErrValidation, "stop %v", err)
		}
	}
	return nil
}

// holdFor returns why o must wait instead of executing now, or 0.
func (e *Engine) holdFor(o *order.Order) holdKind {
	switch {
	case o.TIF == order.GAT && (o.ActivateAt.After(e.now) || e.phase != PhaseOpen):
		return holdActivation
	case o.Type == order.TypeMarketOnOpen || o.Type == order.TypeLimitOnOpen:
		return holdOpen
	case o.Type == order.TypeAtTheOpen && e.phase != PhaseOpen:
		return holdOpen
	case o.Type == order.TypeMarketOnClose || o.Type == order.TypeLimitOnClose:
		return holdClose
	case o.Type.Conditional():
		return holdTrigger
	}
	return 0
}

// route sends an accepted or released order to matching or to the
// registry that holds it.
func (e *Engine) route(o *order.Order) {
	if kind := e.holdFor(o); kind != 0 {
		e.hold(o, kind)
		return
	}
	if o.Type == order.TypePegLimit {
		e.pegs[o.ID] = o
		price, ok := e.pegPrice(o)
		if !ok {
			e.hold(o, holdPeg)
			return
		}
		o.LimitPrice = price
	}
	e.execute(o, false)
}

func (e *Engine) hold(o *order.Order, kind holdKind) {
	if o.Status != order.StatusPending {
		e.sm.Transition(o, order.StatusPending)
	}
	e.held[o.ID] = kind
	switch kind {
	case holdOpen:
		e.onOpen = append(e.onOpen, o.ID)
	case holdClose:
		e.onClose = append(e.onClose, o.ID)
	case holdTrigger:
		if o.Type.Trailing() {
			e.trail(o)
		}
	}
}

// admit runs a released OSO child through acceptance again: the session
// and expiry rules are re-checked against the current state.
func (e *Engine) admit(o *order.Order) {
	delete(e.held, o.ID)
	rerr := e.checkPhase(o)
	if rerr == nil && o.TIF == order.GTD && !o.ExpireAt.After(e.now) {
		rerr = rejectf(ErrValidation, "expiry passed before release")
	}
	if rerr == nil && o.TIF == order.FOK && e.holdFor(o) == 0 {
		if fillable := e.fillable(o); fillable < o.Remaining {
			rerr = rejectf(ErrInfeasibleFillOrKill, "fillable %d < quantity %d", fillable, o.Remaining)
		}
	}
	if rerr != nil {
		e.sm.Transition(o, order.StatusRejected)
		e.emit(Event{
			Kind:     EventRejected,
			OrderID:  o.ID,
			ClientID: o.ClientID,
			Side:     o.Side,
			Type:     o.Type,
			Price:    o.LimitPrice,
			Quantity: o.Remaining,
			Reason:   rerr.Reason,
			Code:     rerr.Code(),
		})
		e.retire(o)
		return
	}
	e.route(o)
}

package engine

import (
	"errors"
	"fmt"
)

// Rejection kinds. Every rejected command returns a *RejectError wrapping
// exactly one of these.
var (
	ErrValidation           = errors.New("validation error")
	ErrUnknownOrder         = errors.New("unknown order")
	ErrAlreadyTerminal      = fmt.Errorf("%w: already terminal", ErrUnknownOrder)
	ErrInfeasibleFillOrKill = errors.New("fill-or-kill infeasible")
	ErrMarketClosed         = errors.New("market closed")
)

// RejectError is the typed rejection returned synchronously for a command.
type RejectError struct {
	Kind    error
	Reason  string
	OrderID uint64
}

func (e *RejectError) Error() string {
	if e.OrderID != 0 {
		return fmt.Sprintf("order %d: %v: %s", e.OrderID, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

func (e *RejectError) Unwrap() error { return e.Kind }

// Code is a short stable label for the rejection kind.
func (e *RejectError) Code() string {
	switch e.Kind {
	case ErrValidation:
		return "validation"
	case ErrAlreadyTerminal:
		return "already_terminal"
	case ErrUnknownOrder:
		return "unknown_order"
	case ErrInfeasibleFillOrKill:
		return "infeasible_fok"
	case ErrMarketClosed:
		return "market_closed"
	}
	return "other"
}

func rejectf(kind error, format string, args ...interface{}) *RejectError {
	return &RejectError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// InvariantViolation is panicked when the book reaches a state that valid
// input can never produce.
type InvariantViolation struct {
	Instrument string
	Detail     string
}

func (v InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s: %s", v.Instrument, v.Detail)
}

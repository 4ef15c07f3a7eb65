package engine

import (
	"fmt"
	"time"

	"lob-engine/order"
)

// OCOTrigger selects which execution of an OCO member cancels its sibling.
type OCOTrigger string

const (
	OCOOnAnyFill  OCOTrigger = "any_fill"
	OCOOnFullFill OCOTrigger = "full_fill"
)

// Policy holds the configurable engine behaviour. It may be replaced
// between commands.
type Policy struct {
	// GTCMaxLifetime expires GTC orders older than this on a clock tick.
	// Zero disables the sweep.
	GTCMaxLifetime time.Duration
	OCOTrigger     OCOTrigger
	// TerminalHistory bounds how many terminal orders stay queryable.
	TerminalHistory int
	// MaxConditionalPasses bounds trigger/peg/OSO re-evaluation per command.
	MaxConditionalPasses int
	// VerifyBook runs a full structural check of both sides after every
	// command instead of the crossed-book check alone.
	VerifyBook bool
}

// DefaultPolicy returns the default policy.
func DefaultPolicy() Policy {
	return Policy{
		GTCMaxLifetime:       90 * 24 * time.Hour,
		OCOTrigger:           OCOOnAnyFill,
		TerminalHistory:      100000,
		MaxConditionalPasses: 64,
	}
}

// Validate checks the policy for unusable values.
func (p Policy) Validate() error {
	if p.GTCMaxLifetime < 0 {
		return fmt.Errorf("gtcMaxLifetime must be >= 0")
	}
	if p.OCOTrigger != OCOOnAnyFill && p.OCOTrigger != OCOOnFullFill {
		return fmt.Errorf("ocoTrigger %q must be %s or %s", p.OCOTrigger, OCOOnAnyFill, OCOOnFullFill)
	}
	if p.TerminalHistory < 0 {
		return fmt.Errorf("terminalHistory must be >= 0")
	}
	if p.MaxConditionalPasses <= 0 {
		return fmt.Errorf("maxConditionalPasses must be > 0")
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithSink registers the event sink.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithClock sets the initial logical time.
func WithClock(t time.Time) Option {
	return func(e *Engine) { e.now = t }
}

// WithPhase sets the initial session phase.
func WithPhase(p Phase) Option {
	return func(e *Engine) { e.phase = p }
}

// WithStateMachine shares a status state machine between engines.
func WithStateMachine(sm *order.StateMachine) Option {
	return func(e *Engine) { e.sm = sm }
}

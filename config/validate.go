package config

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"lob-engine/engine"
)

// ErrInvalid describes one configuration problem.
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

func invalidf(format string, args ...interface{}) error {
	return ErrInvalid(fmt.Sprintf(format, args...))
}

// Validate reports every problem in cfg at once.
func Validate(cfg AppConfig) error {
	var errs error
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		errs = multierr.Append(errs, invalidf("log.level %q is not a level", cfg.Log.Level))
	}
	if err := cfg.Policy().Validate(); err != nil {
		errs = multierr.Append(errs, invalidf("engine: %v", err))
	}
	switch engine.Phase(cfg.Engine.InitialPhase) {
	case engine.PhasePreOpen, engine.PhaseOpen, engine.PhaseClosed:
	default:
		errs = multierr.Append(errs, invalidf("engine.initialPhase %q must be PRE_OPEN, OPEN or CLOSED", cfg.Engine.InitialPhase))
	}
	if cfg.Engine.RequestBuffer <= 0 {
		errs = multierr.Append(errs, invalidf("engine.requestBuffer must be > 0"))
	}
	if cfg.Engine.SnapshotLevels <= 0 {
		errs = multierr.Append(errs, invalidf("engine.snapshotLevels must be > 0"))
	}
	if cfg.Market.BarInterval <= 0 {
		errs = multierr.Append(errs, invalidf("market.barInterval must be > 0"))
	}
	if cfg.Market.SubscriberBuffer <= 0 {
		errs = multierr.Append(errs, invalidf("market.subscriberBuffer must be > 0"))
	}
	if cfg.Alert.ThrottleInterval < 0 {
		errs = multierr.Append(errs, invalidf("alert.throttleInterval must be >= 0"))
	}
	if len(cfg.Instruments) == 0 {
		errs = multierr.Append(errs, invalidf("instruments: at least one is required"))
	}

	syms := make([]string, 0, len(cfg.Instruments))
	for sym := range cfg.Instruments {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		errs = multierr.Append(errs, validateInstrument(sym, cfg.Instruments[sym]))
	}
	return errs
}

func validateInstrument(sym string, ic InstrumentConfig) error {
	if ic.PricePrecision < 0 || ic.PricePrecision > 12 {
		return invalidf("instruments.%s.pricePrecision must be in [0,12]", sym)
	}
	c, err := ic.Constraints()
	if err != nil {
		return invalidf("instruments.%s: %v", sym, err)
	}
	var errs error
	if c.TickSize <= 0 {
		errs = multierr.Append(errs, invalidf("instruments.%s.tickSize must be > 0", sym))
	}
	if c.LotSize <= 0 {
		errs = multierr.Append(errs, invalidf("instruments.%s.lotSize must be > 0", sym))
	}
	if c.MinQty < 0 || c.MaxQty < 0 {
		errs = multierr.Append(errs, invalidf("instruments.%s: quantity bounds must be >= 0", sym))
	}
	if c.MaxQty > 0 && c.MinQty > c.MaxQty {
		errs = multierr.Append(errs, invalidf("instruments.%s.minQty exceeds maxQty", sym))
	}
	if c.MinPrice < 0 || c.MaxPrice < 0 {
		errs = multierr.Append(errs, invalidf("instruments.%s: price bounds must be >= 0", sym))
	}
	if c.MaxPrice > 0 && c.MinPrice > c.MaxPrice {
		errs = multierr.Append(errs, invalidf("instruments.%s.minPrice exceeds maxPrice", sym))
	}
	return errs
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lob-engine/engine"
	"lob-engine/infrastructure/logger"
	"lob-engine/infrastructure/monitor"
	"lob-engine/order"
	"lob-engine/venue"
)

// AppConfig holds the daemon configuration.
type AppConfig struct {
	Env         string                      `yaml:"env"`
	Log         logger.Config               `yaml:"log"`
	Metrics     MetricsConfig               `yaml:"metrics"`
	Engine      EngineConfig                `yaml:"engine"`
	Market      MarketConfig                `yaml:"market"`
	Alert       AlertConfig                 `yaml:"alert"`
	Instruments map[string]InstrumentConfig `yaml:"instruments"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"` // empty disables the HTTP endpoint
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// EngineConfig holds the policy points shared by every instrument.
type EngineConfig struct {
	GTCMaxLifetime       time.Duration `yaml:"gtcMaxLifetime"`
	OCOTrigger           string        `yaml:"ocoTrigger"`   // any_fill or full_fill
	InitialPhase         string        `yaml:"initialPhase"` // PRE_OPEN, OPEN or CLOSED
	StartTime            time.Time     `yaml:"startTime"`    // initial logical clock
	TerminalHistory      int           `yaml:"terminalHistory"`
	MaxConditionalPasses int           `yaml:"maxConditionalPasses"`
	VerifyBook           bool          `yaml:"verifyBook"`
	RequestBuffer        int           `yaml:"requestBuffer"`
	SnapshotLevels       int           `yaml:"snapshotLevels"`
}

type MarketConfig struct {
	BarInterval      time.Duration `yaml:"barInterval"`
	SubscriberBuffer int           `yaml:"subscriberBuffer"`
}

type AlertConfig struct {
	// ThrottleInterval suppresses repeats of the same alert.
	ThrottleInterval time.Duration `yaml:"throttleInterval"`
}

// InstrumentConfig describes one instrument. Prices are decimal strings
// converted to ticks with PricePrecision; quantities are in lots.
type InstrumentConfig struct {
	PricePrecision int32  `yaml:"pricePrecision"`
	TickSize       string `yaml:"tickSize"`
	MinPrice       string `yaml:"minPrice"`
	MaxPrice       string `yaml:"maxPrice"`
	LotSize        int64  `yaml:"lotSize"`
	MinQty         int64  `yaml:"minQty"`
	MaxQty         int64  `yaml:"maxQty"`
}

// Default returns the configuration a file is decoded over: keys missing
// from the file keep these values.
func Default() AppConfig {
	p := engine.DefaultPolicy()
	mon := monitor.DefaultConfig()
	return AppConfig{
		Env: "dev",
		Log: logger.DefaultConfig(),
		Metrics: MetricsConfig{
			Addr:      ":9100",
			Namespace: mon.Namespace,
			Subsystem: mon.Subsystem,
		},
		Engine: EngineConfig{
			GTCMaxLifetime:       p.GTCMaxLifetime,
			OCOTrigger:           string(p.OCOTrigger),
			InitialPhase:         string(engine.PhaseOpen),
			TerminalHistory:      p.TerminalHistory,
			MaxConditionalPasses: p.MaxConditionalPasses,
			RequestBuffer:        1024,
			SnapshotLevels:       5,
		},
		Market: MarketConfig{
			BarInterval:      time.Minute,
			SubscriberBuffer: 256,
		},
		Alert: AlertConfig{ThrottleInterval: 5 * time.Minute},
	}
}

// Load reads YAML config from path over the defaults and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then applies LOB_LOG_LEVEL and
// LOB_METRICS_ADDR when set.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("LOB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv("LOB_METRICS_ADDR"); ok {
		cfg.Metrics.Addr = v
	}
	return cfg, Validate(cfg)
}

// Constraints converts the instrument to tick/lot constraints.
func (ic InstrumentConfig) Constraints() (order.Constraints, error) {
	c := order.Constraints{
		LotSize:   ic.LotSize,
		MinQty:    ic.MinQty,
		MaxQty:    ic.MaxQty,
		Precision: ic.PricePrecision,
	}
	var err error
	if c.TickSize, err = optionalPrice(ic.TickSize, ic.PricePrecision); err != nil {
		return c, fmt.Errorf("tickSize: %w", err)
	}
	if c.MinPrice, err = optionalPrice(ic.MinPrice, ic.PricePrecision); err != nil {
		return c, fmt.Errorf("minPrice: %w", err)
	}
	if c.MaxPrice, err = optionalPrice(ic.MaxPrice, ic.PricePrecision); err != nil {
		return c, fmt.Errorf("maxPrice: %w", err)
	}
	return c, nil
}

func optionalPrice(s string, precision int32) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return order.ParsePrice(s, precision)
}

// Policy returns the engine policy.
func (c AppConfig) Policy() engine.Policy {
	return engine.Policy{
		GTCMaxLifetime:       c.Engine.GTCMaxLifetime,
		OCOTrigger:           engine.OCOTrigger(c.Engine.OCOTrigger),
		TerminalHistory:      c.Engine.TerminalHistory,
		MaxConditionalPasses: c.Engine.MaxConditionalPasses,
		VerifyBook:           c.Engine.VerifyBook,
	}
}

// Precision maps each instrument to its price precision.
func (c AppConfig) Precision() map[string]int32 {
	out := make(map[string]int32, len(c.Instruments))
	for sym, ic := range c.Instruments {
		out[sym] = ic.PricePrecision
	}
	return out
}

// VenueConfig builds the venue settings.
func (c AppConfig) VenueConfig() (venue.Config, error) {
	instruments := make(map[string]order.Constraints, len(c.Instruments))
	for sym, ic := range c.Instruments {
		cons, err := ic.Constraints()
		if err != nil {
			return venue.Config{}, fmt.Errorf("instrument %s: %w", sym, err)
		}
		instruments[sym] = cons
	}
	return venue.Config{
		Instruments:    instruments,
		Policy:         c.Policy(),
		Phase:          engine.Phase(c.Engine.InitialPhase),
		Clock:          c.Engine.StartTime,
		RequestBuffer:  c.Engine.RequestBuffer,
		SnapshotLevels: c.Engine.SnapshotLevels,
	}, nil
}

// MonitorConfig returns the metric name prefix.
func (c AppConfig) MonitorConfig() monitor.Config {
	return monitor.Config{Namespace: c.Metrics.Namespace, Subsystem: c.Metrics.Subsystem}
}

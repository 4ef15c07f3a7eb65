package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lob-engine/config"
	"lob-engine/engine"
	"lob-engine/infrastructure/alert"
	"lob-engine/infrastructure/logger"
	"lob-engine/infrastructure/monitor"
	"lob-engine/market"
	"lob-engine/venue"
)

// Container wires the daemon components and owns their lifecycle.
type Container struct {
	cfg        config.AppConfig
	configPath string

	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	publisher *market.Publisher
	market    *market.Service
	bars      *market.BarAggregator
	venue     *venue.Venue
	watcher   *config.Watcher

	metrics *metricsEndpoint

	lifecycle *LifecycleManager
}

// New loads configPath and watches it for policy changes once started.
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewWithConfig(cfg)
	c.configPath = configPath
	return c, nil
}

// NewWithConfig builds a container from an already loaded config. No file
// is watched.
func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{cfg: cfg}
}

// Build constructs every component.
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildMarketData(); err != nil {
		return fmt.Errorf("build market data failed: %w", err)
	}
	if err := c.buildVenue(); err != nil {
		return fmt.Errorf("build venue failed: %w", err)
	}
	if err := c.buildWatcher(); err != nil {
		return fmt.Errorf("build config watcher failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully",
		zap.String("env", c.cfg.Env),
		zap.Strings("instruments", c.venue.Instruments()),
		zap.Strings("alert_channels", c.alerts.GetChannels()),
		zap.Strings("components", c.lifecycle.Names()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.monitor = monitor.New(c.cfg.MonitorConfig())
	c.alerts = alert.NewManager([]alert.Channel{alert.NewLogChannel("log", c.logger)}, c.cfg.Alert.ThrottleInterval)
	return nil
}

func (c *Container) buildMarketData() error {
	c.publisher = market.NewPublisher(c.cfg.Market.SubscriberBuffer, func(stream string) {
		c.monitor.RecordDrop(stream)
		_ = c.alerts.SendWarning("market data subscriber dropping", map[string]interface{}{"stream": stream})
	})
	c.market = market.NewService(c.publisher)
	c.bars = market.NewBarAggregator(c.cfg.Market.BarInterval, c.publisher)
	return nil
}

func (c *Container) buildVenue() error {
	vc, err := c.cfg.VenueConfig()
	if err != nil {
		return err
	}
	sink := engine.Sinks(
		logger.NewEventLogger(c.logger, c.cfg.Precision()),
		c.monitor,
		c.publisher,
		c.bars,
	)
	c.venue, err = venue.New(vc,
		venue.WithSink(sink),
		venue.WithLatencyObserver(c.monitor),
		venue.WithBookObserver(c.monitor),
		venue.WithBookObserver(c.market),
		venue.WithLogger(c.logger),
		venue.WithHaltHandler(func(instrument string, err error) {
			_ = c.alerts.SendCritical("instrument halted", map[string]interface{}{
				"instrument": instrument,
				"error":      err.Error(),
			})
		}),
	)
	return err
}

func (c *Container) buildWatcher() error {
	if c.configPath == "" {
		return nil
	}
	var err error
	c.watcher, err = config.NewWatcher(c.configPath, time.Second, c.applyConfig, func(err error) {
		c.logger.LogError(err, map[string]interface{}{"action": "config_reload"})
		_ = c.alerts.SendWarning(configRejectedAlert, map[string]interface{}{
			"path":  c.configPath,
			"error": err.Error(),
		})
	})
	return err
}

const configRejectedAlert = "config reload rejected"

// applyConfig pushes the parts of a reloaded config that can change while
// running. Instruments and outputs need a restart.
func (c *Container) applyConfig(next config.AppConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.venue.SetPolicy(ctx, next.Policy()); err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "apply_policy"})
		return
	}
	c.alerts.Resolve(alert.LevelWarning, configRejectedAlert)
	for sym := range next.Instruments {
		if _, ok := c.cfg.Instruments[sym]; !ok {
			c.logger.Warn("new instrument ignored until restart", zap.String("instrument", sym))
		}
	}
	_ = c.alerts.SendInfo("engine policy reloaded", map[string]interface{}{"path": c.configPath})
}

func (c *Container) registerLifecycleComponents() {
	c.lifecycle = NewLifecycleManager(c.logger)
	c.lifecycle.Register("venue", c.venue)
	if c.cfg.Metrics.Addr != "" {
		c.metrics = newMetricsEndpoint(c.cfg.Metrics.Addr, c.monitor.Handler(), c.logger)
		c.lifecycle.Register("metrics", c.metrics)
	}
	if c.watcher != nil {
		c.lifecycle.Register("config_watcher", c.watcher)
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop stops components in reverse order, closes open bars and ends every
// market data subscription.
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	for _, b := range c.bars.Flush() {
		c.publisher.PublishBar(b)
	}
	c.publisher.Close()

	c.logger.Info("container stopped")
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

func (c *Container) Config() config.AppConfig { return c.cfg }
func (c *Container) Logger() *logger.Logger { return c.logger }
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }
func (c *Container) Alerts() *alert.Manager { return c.alerts }
func (c *Container) Venue() *venue.Venue { return c.venue }
func (c *Container) Market() *market.Service { return c.market }
func (c *Container) Publisher() *market.Publisher { return c.publisher }
func (c *Container) Bars() *market.BarAggregator { return c.bars }
func (c *Container) Watcher() *config.Watcher { return c.watcher }

// MetricsAddr is the bound metrics address, empty when disabled or stopped.
func (c *Container) MetricsAddr() string {
	if c.metrics == nil {
		return ""
	}
	return c.metrics.Addr()
}

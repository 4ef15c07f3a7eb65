package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lob-engine/engine"
)

// Monitor collects engine metrics on a private registry. It is an
// engine.Sink for the event stream and a venue observer for command
// latency and top of book.
type Monitor struct {
	registry *prometheus.Registry

	ordersAccepted  *prometheus.CounterVec
	ordersRejected  *prometheus.CounterVec
	ordersFilled    *prometheus.CounterVec
	ordersCancelled *prometheus.CounterVec
	ordersExpired   *prometheus.CounterVec
	ordersTriggered *prometheus.CounterVec
	ordersModified  *prometheus.CounterVec

	tradesTotal  *prometheus.CounterVec
	tradedVolume *prometheus.CounterVec

	bestBid *prometheus.GaugeVec
	bestAsk *prometheus.GaugeVec
	spread  *prometheus.GaugeVec

	commandLatency *prometheus.HistogramVec
	commandErrors  *prometheus.CounterVec

	subscriberDrops *prometheus.CounterVec
}

// Config sets the metric name prefix.
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig returns the lob_engine_ prefix.
func DefaultConfig() Config {
	return Config{
		Namespace: "lob",
		Subsystem: "engine",
	}
}

// New creates a Monitor with its own registry.
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, []string{"instrument"})
	}

	return &Monitor{
		registry: reg,

		ordersAccepted:  counter("orders_accepted_total", "Orders accepted", "instrument", "type"),
		ordersRejected:  counter("orders_rejected_total", "Commands rejected, by reject code", "instrument", "code"),
		ordersFilled:    counter("orders_filled_total", "Orders completely filled", "instrument"),
		ordersCancelled: counter("orders_cancelled_total", "Orders cancelled, by request or by TIF/group rules", "instrument"),
		ordersExpired:   counter("orders_expired_total", "Orders expired by session close, GTD or max lifetime", "instrument"),
		ordersTriggered: counter("orders_triggered_total", "Conditional orders triggered", "instrument"),
		ordersModified:  counter("orders_modified_total", "Order modifications, repegs included", "instrument"),

		tradesTotal:  counter("trades_total", "Trades executed", "instrument"),
		tradedVolume: counter("traded_volume_total", "Traded quantity in lots", "instrument"),

		bestBid: gauge("best_bid_ticks", "Best bid price in ticks, 0 when the side is empty"),
		bestAsk: gauge("best_ask_ticks", "Best ask price in ticks, 0 when the side is empty"),
		spread:  gauge("spread_ticks", "Best ask minus best bid, 0 when either side is empty"),

		commandLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "command_latency_seconds",
			Help:      "Time spent applying one command on the instrument goroutine",
			Buckets:   []float64{0.000005, 0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005, 0.01},
		}, []string{"instrument", "command"}),
		commandErrors: counter("command_errors_total", "Commands that returned an error", "instrument", "command"),

		subscriberDrops: counter("subscriber_drops_total", "Items dropped because a subscriber buffer was full", "stream"),
	}
}

// OnEvent implements engine.Sink.
func (m *Monitor) OnEvent(ev engine.Event) {
	inst := ev.Instrument
	switch ev.Kind {
	case engine.EventAccepted:
		m.ordersAccepted.WithLabelValues(inst, string(ev.Type)).Inc()
	case engine.EventRejected:
		m.ordersRejected.WithLabelValues(inst, ev.Code).Inc()
	case engine.EventFilled:
		m.ordersFilled.WithLabelValues(inst).Inc()
	case engine.EventCancelled:
		m.ordersCancelled.WithLabelValues(inst).Inc()
	case engine.EventExpired:
		m.ordersExpired.WithLabelValues(inst).Inc()
	case engine.EventTriggered:
		m.ordersTriggered.WithLabelValues(inst).Inc()
	case engine.EventModified:
		m.ordersModified.WithLabelValues(inst).Inc()
	case engine.EventTrade:
		m.tradesTotal.WithLabelValues(inst).Inc()
		m.tradedVolume.WithLabelValues(inst).Add(float64(ev.Quantity))
	}
}

// ObserveCommand records how long a command took on its instrument
// goroutine.
func (m *Monitor) ObserveCommand(instrument, command string, elapsed time.Duration, err error) {
	m.commandLatency.WithLabelValues(instrument, command).Observe(elapsed.Seconds())
	if err != nil {
		m.commandErrors.WithLabelValues(instrument, command).Inc()
	}
}

// ObserveBook updates the top-of-book gauges.
func (m *Monitor) ObserveBook(s engine.Snapshot) {
	var bid, ask, spread float64
	if len(s.Bids) > 0 {
		bid = float64(s.Bids[0].Price)
	}
	if len(s.Asks) > 0 {
		ask = float64(s.Asks[0].Price)
	}
	if bid > 0 && ask > 0 {
		spread = ask - bid
	}
	m.bestBid.WithLabelValues(s.Instrument).Set(bid)
	m.bestAsk.WithLabelValues(s.Instrument).Set(ask)
	m.spread.WithLabelValues(s.Instrument).Set(spread)
}

// RecordDrop counts an item a subscriber could not take.
func (m *Monitor) RecordDrop(stream string) {
	m.subscriberDrops.WithLabelValues(stream).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

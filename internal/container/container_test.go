package container

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lob-engine/config"
	"lob-engine/engine"
	"lob-engine/order"
	"lob-engine/venue"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Outputs = []string{"file"}
	cfg.Log.OutputFile = filepath.Join(t.TempDir(), "lob.log")
	cfg.Metrics.Addr = ""
	cfg.Engine.StartTime = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	cfg.Instruments = map[string]config.InstrumentConfig{
		"ACME": {PricePrecision: 2, TickSize: "0.01", LotSize: 1},
	}
	return cfg
}

func TestContainerEndToEnd(t *testing.T) {
	c := NewWithConfig(testConfig(t))
	require.NoError(t, c.Build())
	trades := c.Publisher().SubscribeTrades()
	quotes := c.Publisher().SubscribeQuotes()
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.HealthCheck())

	v := c.Venue()
	_, err := v.Submit(ctx, engine.NewOrder{Instrument: "ACME", Side: order.Sell, Type: order.TypeLimit, LimitPrice: 10050, Quantity: 5})
	require.NoError(t, err)
	_, err = v.Submit(ctx, engine.NewOrder{Instrument: "ACME", Side: order.Buy, Type: order.TypeLimit, LimitPrice: 10000, Quantity: 5})
	require.NoError(t, err)

	q, ok := c.Market().Quote("ACME")
	require.True(t, ok)
	assert.Equal(t, int64(10000), q.Bid)
	assert.Equal(t, int64(10050), q.Ask)
	mid, ok := c.Market().Mid("ACME")
	require.True(t, ok)
	assert.Equal(t, "10025", mid.String())

	res, err := v.Submit(ctx, engine.NewOrder{Instrument: "ACME", Side: order.Buy, Type: order.TypeMarket, Quantity: 2})
	require.NoError(t, err)
	require.Len(t, res.Trades(), 1)
	tr := <-trades
	assert.Equal(t, int64(10050), tr.Price)
	assert.Equal(t, int64(2), tr.Quantity)
	assert.NotEmpty(t, quotes)

	_, open := c.Bars().Current("ACME")
	assert.True(t, open)

	require.NoError(t, c.Stop())
	_, more := <-trades
	assert.False(t, more)

	raw, err := os.ReadFile(c.Config().Log.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "trade_event")
	assert.Contains(t, string(raw), `"price_text":"100.50"`)
}

func TestContainerAppliesReloadedPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lob.yaml")
	base := `
log:
  outputs: [file]
  output_file: ` + filepath.Join(dir, "lob.log") + `
metrics:
  addr: ""
engine:
  ocoTrigger: any_fill
instruments:
  ACME:
    tickSize: "1"
    lotSize: 1
`
	require.NoError(t, os.WriteFile(path, []byte(base), 0o644))

	c, err := New(path)
	require.NoError(t, err)
	require.NoError(t, c.Build())
	require.NotNil(t, c.Watcher())
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	updated := strings.Replace(base, "any_fill", "full_fill", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		var p engine.Policy
		err := c.Venue().Query(ctx, "ACME", func(e *engine.Engine) { p = e.Policy() })
		return err == nil && p.OCOTrigger == engine.OCOOnFullFill
	}, 3*time.Second, 10*time.Millisecond)
}

func TestContainerHaltRaisesAlert(t *testing.T) {
	c := NewWithConfig(testConfig(t))
	require.NoError(t, c.Build())
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	err := c.Venue().Query(ctx, "ACME", func(*engine.Engine) {
		panic(engine.InvariantViolation{Instrument: "ACME", Detail: "crossed book"})
	})
	require.ErrorIs(t, err, venue.ErrHalted)
	assert.ErrorIs(t, c.HealthCheck(), venue.ErrHalted)
	require.NoError(t, c.Stop())

	raw, err := os.ReadFile(c.Config().Log.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "alert: instrument halted")
	assert.Contains(t, string(raw), `"alert_level":"CRITICAL"`)
}

func TestBuildRejectsBadInstrument(t *testing.T) {
	cfg := testConfig(t)
	cfg.Instruments["BAD"] = config.InstrumentConfig{PricePrecision: 1, TickSize: "0.05", LotSize: 1}
	c := NewWithConfig(cfg)
	assert.Error(t, c.Build())
}

func TestContainerServesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"
	c := NewWithConfig(cfg)
	require.NoError(t, c.Build())
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer func() { require.NoError(t, c.Stop()) }()

	_, err := c.Venue().Submit(ctx, engine.NewOrder{Instrument: "ACME", Side: order.Buy, Type: order.TypeLimit, LimitPrice: 10000, Quantity: 1})
	require.NoError(t, err)

	require.NotEmpty(t, c.MetricsAddr())
	resp, err := http.Get("http://" + c.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `lob_engine_orders_accepted_total{instrument="ACME",type="LIMIT"} 1`)
	assert.NoError(t, c.HealthCheck())
}

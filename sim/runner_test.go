package sim

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"lob-engine/engine"
	"lob-engine/order"
	"lob-engine/venue"
)

func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer) {
	t.Helper()
	v, err := venue.New(venue.Config{
		Instruments: map[string]order.Constraints{
			"ACME": {TickSize: 1, LotSize: 1, Precision: 2},
			"INIT": {TickSize: 5, LotSize: 10, Precision: 1},
		},
		Clock: time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("new venue: %v", err)
	}
	if err := v.Start(context.Background()); err != nil {
		t.Fatalf("start venue: %v", err)
	}
	t.Cleanup(func() { _ = v.Stop() })
	out := &bytes.Buffer{}
	return NewRunner(v, out), out
}

func TestRunnerMatchesAndReports(t *testing.T) {
	r, out := newTestRunner(t)
	script := `
# resting liquidity
submit ACME SELL LIMIT 5 price=100.50 client=s1
submit acme buy limit 3 price=100.50
book ACME
cancel ACME s1
`
	if err := r.Run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"> submit ACME SELL LIMIT 5 price=100.50 client=s1",
		"ACCEPTED ACME order=1 qty=5 price=100.50",
		"TRADE ACME 100.50 x 3 buy=2 sell=1",
		"book ACME phase=OPEN",
		"ask 100.50 2 (1)",
		"CANCELLED ACME order=1 qty=2",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunnerGeneratesClientIDs(t *testing.T) {
	r, _ := newTestRunner(t)
	r.newID = func() string { return "gen-1" }
	ctx := context.Background()

	res, err := r.Exec(ctx, "submit ACME BUY LIMIT 4 price=99")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Events[0].ClientID != "gen-1" {
		t.Fatalf("expected generated client id, got %+v", res.Events[0])
	}
	res, err = r.Exec(ctx, "modify ACME gen-1 qty=2")
	if err != nil {
		t.Fatalf("modify by alias: %v", err)
	}
	if res.Events[0].Kind != engine.EventModified {
		t.Fatalf("expected modified event, got %+v", res.Events)
	}

	r.newID = func() string { return "unused" }
	res, err = r.Exec(ctx, "submit ACME SELL LIMIT 1 price=101")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Events[0].ClientID != "unused" {
		t.Fatalf("expected generated id, got %q", res.Events[0].ClientID)
	}
}

func TestRunnerPricesUsePrecision(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.Exec(context.Background(), "submit INIT BUY LIMIT 20 price=12.5")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Events[0].Price != 125 {
		t.Fatalf("expected 125 units, got %d", res.Events[0].Price)
	}
	if _, err := r.Exec(context.Background(), "submit INIT BUY LIMIT 20 price=12.55"); err == nil {
		t.Fatalf("expected too many decimals to fail")
	}
}

func TestRunnerGroups(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	res, err := r.Exec(ctx, "oco ACME SELL LIMIT 5 price=110 client=tp | ACME SELL STOP_LOSS 5 stop=90 client=sl")
	if err != nil {
		t.Fatalf("oco: %v", err)
	}
	if len(res.OrderIDs) != 2 {
		t.Fatalf("expected two ids, got %v", res.OrderIDs)
	}
	if _, err := r.Exec(ctx, "cancel ACME tp"); err != nil {
		t.Fatalf("cancel by alias: %v", err)
	}

	res, err = r.Exec(ctx, "oso ACME BUY LIMIT 5 price=100 | ACME SELL LIMIT 5 price=105 | ACME SELL STOP_LOSS 5 stop=95")
	if err != nil {
		t.Fatalf("oso: %v", err)
	}
	if len(res.OrderIDs) != 3 {
		t.Fatalf("expected three ids, got %v", res.OrderIDs)
	}

	if _, err := r.Exec(ctx, "oco ACME SELL LIMIT 5 price=110"); err == nil {
		t.Fatalf("expected single-member oco to fail")
	}
	if _, err := r.Exec(ctx, "oco ACME SELL LIMIT 1 price=110 | ACME SELL LIMIT 1 price=111 | ACME SELL LIMIT 1 price=112"); err == nil {
		t.Fatalf("expected three-member oco to fail")
	}
}

func TestRunnerSessions(t *testing.T) {
	r, out := newTestRunner(t)
	script := `
submit ACME BUY LIMIT 1 price=100 tif=DAY
close * 2024-03-04T16:00:00Z
submit ACME BUY LIMIT 1 price=100
tick ACME 2024-03-05T09:00:00Z
open ACME
`
	if err := r.Run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("rejections must not fail the run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "EXPIRED ACME order=1") {
		t.Fatalf("expected DAY order to expire at close:\n%s", got)
	}
	if !strings.Contains(got, "error: ") || !strings.Contains(got, "market closed") {
		t.Fatalf("expected closed-market rejection in report:\n%s", got)
	}
}

func TestRunnerCollectsScriptErrors(t *testing.T) {
	r, _ := newTestRunner(t)
	script := strings.Join([]string{
		"frobnicate ACME",
		"submit ACME UP LIMIT 1 price=1",
		"cancel ACME 999",
		"submit ACME BUY LIMIT 1 price=1 colour=blue",
		"tick ACME yesterday",
		"book ACME zero",
		"cancel ACME nobody",
	}, "\n")
	err := r.Run(context.Background(), strings.NewReader(script))
	errs := multierr.Errors(err)
	// cancel of an unknown id is an engine rejection, not a script error
	if len(errs) != 6 {
		t.Fatalf("expected 6 script errors, got %d: %v", len(errs), err)
	}
	if !strings.Contains(errs[0].Error(), "line 1") || !strings.Contains(errs[2].Error(), "line 4") {
		t.Fatalf("errors should carry line numbers: %v", err)
	}
}

func TestRunnerStopsWithContext(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, strings.NewReader("submit ACME BUY LIMIT 1 price=1\n"))
	if err == nil || !strings.Contains(err.Error(), "context canceled") {
		t.Fatalf("expected context error, got %v", err)
	}
}

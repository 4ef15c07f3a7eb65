// Package sim drives a venue from a line-oriented text script. It backs the
// daemon's stdin driver and replayable test scenarios.
//
// One command per line; blank lines and lines starting with # are skipped.
// Prices are decimal strings at the instrument's precision.
//
//	submit ACME BUY LIMIT 10 price=100.50 tif=GTC client=c1
//	oco ACME SELL LIMIT 5 price=110 | ACME SELL STOP_LOSS 5 stop=90
//	oso ACME BUY LIMIT 5 price=100 | ACME SELL LIMIT 5 price=110
//	modify ACME c1 qty=8 price=101
//	cancel ACME 3
//	open * 2024-03-04T09:30:00Z
//	tick ACME 2024-03-04T10:00:00Z
//	close *
//	book ACME 5
package sim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"lob-engine/engine"
	"lob-engine/order"
)

// Venue is the command surface the runner drives.
type Venue interface {
	Submit(ctx context.Context, n engine.NewOrder) (engine.Result, error)
	SubmitOCO(ctx context.Context, a, b engine.NewOrder) (engine.Result, error)
	SubmitOSO(ctx context.Context, primary engine.NewOrder, linked ...engine.NewOrder) (engine.Result, error)
	Cancel(ctx context.Context, c engine.CancelOrder) (engine.Result, error)
	Modify(ctx context.Context, m engine.ModifyOrder) (engine.Result, error)
	Session(ctx context.Context, instrument string, ev engine.SessionEvent) (engine.Result, error)
	SessionAll(ctx context.Context, ev engine.SessionEvent) (map[string]engine.Result, error)
	Snapshot(ctx context.Context, instrument string, levels int) (engine.Snapshot, error)
	Constraints(instrument string) (order.Constraints, bool)
}

// Runner parses script lines into venue commands and writes one report per
// command. Orders can be referred to by engine id or by client id.
type Runner struct {
	venue Venue
	out   io.Writer
	newID func() string

	mu      sync.Mutex
	aliases map[string]uint64
}

// NewRunner writes reports to out; a nil out discards them.
func NewRunner(v Venue, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		venue:   v,
		out:     out,
		newID:   uuid.NewString,
		aliases: make(map[string]uint64),
	}
}

// Run executes every line of r. Engine rejections are reported and the run
// continues; parse and transport failures are collected with their line
// numbers and returned together. Run stops when ctx ends.
func (r *Runner) Run(ctx context.Context, in io.Reader) error {
	var errs error
	sc := bufio.NewScanner(in)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res, err := r.Exec(ctx, line)
		r.report(line, res, err)
		if err != nil && !isRejection(err) {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
		}
	}
	return multierr.Append(errs, sc.Err())
}

// Exec runs a single script line.
func (r *Runner) Exec(ctx context.Context, line string) (engine.Result, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return engine.Result{}, fmt.Errorf("empty command")
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "submit":
		n, err := r.parseOrder(args)
		if err != nil {
			return engine.Result{}, err
		}
		return r.remember(r.venue.Submit(ctx, n))
	case "oco":
		specs, err := r.parseGroup(line)
		if err != nil {
			return engine.Result{}, err
		}
		if len(specs) != 2 {
			return engine.Result{}, fmt.Errorf("oco needs exactly two orders")
		}
		return r.remember(r.venue.SubmitOCO(ctx, specs[0], specs[1]))
	case "oso":
		specs, err := r.parseGroup(line)
		if err != nil {
			return engine.Result{}, err
		}
		return r.remember(r.venue.SubmitOSO(ctx, specs[0], specs[1:]...))
	case "cancel":
		if len(args) != 2 {
			return engine.Result{}, fmt.Errorf("usage: cancel <instrument> <order>")
		}
		id, err := r.resolve(args[1])
		if err != nil {
			return engine.Result{}, err
		}
		return r.venue.Cancel(ctx, engine.CancelOrder{Instrument: args[0], OrderID: id})
	case "modify":
		m, err := r.parseModify(args)
		if err != nil {
			return engine.Result{}, err
		}
		return r.venue.Modify(ctx, m)
	case "open", "close", "tick":
		return r.session(ctx, cmd, args)
	case "book":
		return engine.Result{}, r.book(ctx, args)
	}
	return engine.Result{}, fmt.Errorf("unknown command %q", fields[0])
}

func (r *Runner) session(ctx context.Context, cmd string, args []string) (engine.Result, error) {
	if len(args) < 1 || len(args) > 2 {
		return engine.Result{}, fmt.Errorf("usage: %s <instrument|*> [time]", cmd)
	}
	ev := engine.SessionEvent{Kind: map[string]engine.SessionKind{
		"open":  engine.SessionOpen,
		"close": engine.SessionClose,
		"tick":  engine.SessionClockTick,
	}[cmd]}
	if len(args) == 2 {
		t, err := time.Parse(time.RFC3339Nano, args[1])
		if err != nil {
			return engine.Result{}, fmt.Errorf("parse time: %w", err)
		}
		ev.Time = t
	}
	if args[0] != "*" {
		return r.venue.Session(ctx, args[0], ev)
	}

	results, err := r.venue.SessionAll(ctx, ev)
	insts := make([]string, 0, len(results))
	for inst := range results {
		insts = append(insts, inst)
	}
	sort.Strings(insts)
	var merged engine.Result
	for _, inst := range insts {
		merged.Events = append(merged.Events, results[inst].Events...)
	}
	return merged, err
}

func (r *Runner) book(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: book <instrument> [levels]")
	}
	levels := 5
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("levels %q must be a positive integer", args[1])
		}
		levels = n
	}
	snap, err := r.venue.Snapshot(ctx, args[0], levels)
	if err != nil {
		return err
	}
	prec := r.precision(args[0])
	fmt.Fprintf(r.out, "book %s phase=%s time=%s last=%s\n",
		snap.Instrument, snap.Phase, snap.Time.Format(time.RFC3339), order.FormatPrice(snap.LastTrade, prec))
	for i := len(snap.Asks) - 1; i >= 0; i-- {
		l := snap.Asks[i]
		fmt.Fprintf(r.out, "  ask %s %d (%d)\n", order.FormatPrice(l.Price, prec), l.Quantity, l.Orders)
	}
	for _, l := range snap.Bids {
		fmt.Fprintf(r.out, "  bid %s %d (%d)\n", order.FormatPrice(l.Price, prec), l.Quantity, l.Orders)
	}
	return nil
}

// parseGroup splits the arguments of a grouped command on "|" into order
// specs.
func (r *Runner) parseGroup(line string) ([]engine.NewOrder, error) {
	_, body, _ := strings.Cut(strings.TrimSpace(line), " ")
	parts := strings.Split(body, "|")
	if len(parts) < 2 {
		return nil, fmt.Errorf("group needs at least two orders separated by |")
	}
	out := make([]engine.NewOrder, 0, len(parts))
	for i, p := range parts {
		n, err := r.parseOrder(strings.Fields(p))
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i+1, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// parseOrder reads "<instrument> <side> <type> <qty> [key=value...]".
func (r *Runner) parseOrder(args []string) (engine.NewOrder, error) {
	if len(args) < 4 {
		return engine.NewOrder{}, fmt.Errorf("usage: <instrument> <side> <type> <qty> [key=value...]")
	}
	n := engine.NewOrder{
		Instrument: args[0],
		Side:       order.Side(strings.ToUpper(args[1])),
		Type:       order.Type(strings.ToUpper(args[2])),
	}
	if !n.Side.Valid() {
		return n, fmt.Errorf("side %q must be BUY or SELL", args[1])
	}
	qty, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return n, fmt.Errorf("quantity %q: %w", args[3], err)
	}
	n.Quantity = qty

	prec := r.precision(n.Instrument)
	for _, kv := range args[4:] {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return n, fmt.Errorf("option %q must be key=value", kv)
		}
		switch strings.ToLower(key) {
		case "price":
			n.LimitPrice, err = order.ParsePrice(val, prec)
		case "stop":
			n.StopPrice, err = order.ParsePrice(val, prec)
		case "offset":
			n.PegOffset, err = order.ParsePrice(val, prec)
		case "trail":
			n.TrailPercent, err = decimal.NewFromString(val)
		case "tif":
			n.TIF = order.TimeInForce(strings.ToUpper(val))
		case "expire":
			n.ExpireAt, err = time.Parse(time.RFC3339Nano, val)
		case "activate":
			n.ActivateAt, err = time.Parse(time.RFC3339Nano, val)
		case "client":
			n.ClientID = val
		case "group":
			n.Group, err = r.resolve(val)
		default:
			return n, fmt.Errorf("unknown option %q", key)
		}
		if err != nil {
			return n, fmt.Errorf("option %s: %w", key, err)
		}
	}
	if n.ClientID == "" {
		n.ClientID = r.newID()
	}
	return n, nil
}

func (r *Runner) parseModify(args []string) (engine.ModifyOrder, error) {
	if len(args) < 3 {
		return engine.ModifyOrder{}, fmt.Errorf("usage: modify <instrument> <order> key=value...")
	}
	id, err := r.resolve(args[1])
	if err != nil {
		return engine.ModifyOrder{}, err
	}
	m := engine.ModifyOrder{Instrument: args[0], OrderID: id}
	prec := r.precision(m.Instrument)
	for _, kv := range args[2:] {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return m, fmt.Errorf("option %q must be key=value", kv)
		}
		switch strings.ToLower(key) {
		case "qty":
			m.Quantity, err = strconv.ParseInt(val, 10, 64)
		case "price":
			m.Price, err = order.ParsePrice(val, prec)
		case "stop":
			m.StopPrice, err = order.ParsePrice(val, prec)
		default:
			return m, fmt.Errorf("unknown option %q", key)
		}
		if err != nil {
			return m, fmt.Errorf("option %s: %w", key, err)
		}
	}
	return m, nil
}

func (r *Runner) precision(instrument string) int32 {
	c, _ := r.venue.Constraints(instrument)
	return c.Precision
}

// resolve maps a numeric id or a known client id to an engine id.
func (r *Runner) resolve(ref string) (uint64, error) {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return id, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.aliases[ref]
	if !ok {
		return 0, fmt.Errorf("unknown order reference %q", ref)
	}
	return id, nil
}

func (r *Runner) remember(res engine.Result, err error) (engine.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range res.Events {
		if ev.Kind == engine.EventAccepted && ev.ClientID != "" {
			r.aliases[ev.ClientID] = ev.OrderID
		}
	}
	return res, err
}

func (r *Runner) report(line string, res engine.Result, err error) {
	fmt.Fprintf(r.out, "> %s\n", line)
	for _, ev := range res.Events {
		fmt.Fprintf(r.out, "  %s\n", r.formatEvent(ev))
	}
	if err != nil {
		fmt.Fprintf(r.out, "  error: %v\n", err)
	}
}

func (r *Runner) formatEvent(ev engine.Event) string {
	prec := r.precision(ev.Instrument)
	if ev.Kind == engine.EventTrade && ev.Trade != nil {
		t := ev.Trade
		return fmt.Sprintf("%d TRADE %s %s x %d buy=%d sell=%d",
			ev.Seq, t.Instrument, order.FormatPrice(t.Price, prec), t.Quantity, t.BuyOrderID, t.SellOrderID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s %s order=%d", ev.Seq, ev.Kind, ev.Instrument, ev.OrderID)
	if ev.Quantity != 0 {
		fmt.Fprintf(&b, " qty=%d", ev.Quantity)
	}
	if ev.Price != 0 {
		fmt.Fprintf(&b, " price=%s", order.FormatPrice(ev.Price, prec))
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, " reason=%q", ev.Reason)
	}
	return b.String()
}

// isRejection reports whether err is an engine rejection, which is an
// expected outcome of a script line rather than a failure of the run.
func isRejection(err error) bool {
	var re *engine.RejectError
	return errors.As(err, &re)
}

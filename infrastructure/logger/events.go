package logger

import (
	"go.uber.org/zap"

	"lob-engine/engine"
	"lob-engine/order"
)

// EventLogger writes one structured record per engine event. Trades are
// logged as trade_event, everything else as order_event; rejections go out
// at warn level.
type EventLogger struct {
	log       *Logger
	precision map[string]int32
}

// NewEventLogger returns a sink logging to l. precision maps an instrument
// to its price precision; instruments without an entry use precision 0.
func NewEventLogger(l *Logger, precision map[string]int32) *EventLogger {
	return &EventLogger{log: l, precision: precision}
}

// OnEvent implements engine.Sink.
func (el *EventLogger) OnEvent(ev engine.Event) {
	if ev.Kind == engine.EventTrade && ev.Trade != nil {
		t := ev.Trade
		el.log.Info("trade_event",
			zap.String("instrument", ev.Instrument),
			zap.Uint64("seq", ev.Seq),
			zap.Uint64("trade_id", t.ID),
			zap.Int64("price", t.Price),
			zap.String("price_text", el.formatPrice(ev.Instrument, t.Price)),
			zap.Int64("qty", t.Quantity),
			zap.Uint64("buy_order_id", t.BuyOrderID),
			zap.Uint64("sell_order_id", t.SellOrderID),
			zap.String("aggressor", string(t.Aggressor)),
			zap.Time("ts", ev.Time),
		)
		return
	}

	fields := []zap.Field{
		zap.String("event", string(ev.Kind)),
		zap.String("instrument", ev.Instrument),
		zap.Uint64("seq", ev.Seq),
		zap.Uint64("order_id", ev.OrderID),
		zap.String("side", string(ev.Side)),
		zap.String("type", string(ev.Type)),
		zap.Int64("qty", ev.Quantity),
		zap.Time("ts", ev.Time),
	}
	if ev.ClientID != "" {
		fields = append(fields, zap.String("client_id", ev.ClientID))
	}
	if ev.Price != 0 {
		fields = append(fields,
			zap.Int64("price", ev.Price),
			zap.String("price_text", el.formatPrice(ev.Instrument, ev.Price)))
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}
	if ev.Kind == engine.EventRejected {
		fields = append(fields, zap.String("code", ev.Code))
		el.log.Warn("order_event", fields...)
		return
	}
	el.log.Info("order_event", fields...)
}

func (el *EventLogger) formatPrice(instrument string, price int64) string {
	return order.FormatPrice(price, el.precision[instrument])
}

// Package logschema lists the fields every structured log event must carry,
// so log consumers can rely on them.
package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema names the required keys of one log message.
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"order_event": {
		Event:    "order_event",
		Required: []string{"event", "instrument", "seq", "order_id", "side", "type", "qty", "ts"},
	},
	"trade_event": {
		Event:    "trade_event",
		Required: []string{"instrument", "seq", "trade_id", "price", "price_text", "qty", "buy_order_id", "sell_order_id", "aggressor", "ts"},
	},
	"error_event": {
		Event:    "error_event",
		Required: []string{"error"},
	},
}

// Known returns every event name, sorted.
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the schema of event.
func Lookup(event string) (Schema, bool) {
	s, ok := schemas[event]
	return s, ok
}

// Validate checks that fields holds every key the event requires. Events
// without a schema pass.
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s missing fields: %s", event, strings.Join(missing, ","))
	}
	return nil
}

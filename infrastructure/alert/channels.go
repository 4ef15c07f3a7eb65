package alert

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lob-engine/infrastructure/logger"
)

// LogChannel writes alerts to the structured log as "alert" records.
type LogChannel struct {
	logger *logger.Logger
	name   string
}

func NewLogChannel(name string, l *logger.Logger) *LogChannel {
	if l == nil {
		l = logger.NewNop()
	}
	return &LogChannel{logger: l, name: name}
}

func (c *LogChannel) Send(alert Alert) error {
	fields := make([]zap.Field, 0, len(alert.Fields)+2)
	fields = append(fields,
		zap.String("alert_level", string(alert.Level)),
		zap.Time("alert_ts", alert.Timestamp))
	keys := make([]string, 0, len(alert.Fields))
	for k := range alert.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, alert.Fields[k]))
	}

	if ce := c.logger.Check(zapLevel(alert.Level), "alert: "+alert.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (c *LogChannel) Name() string {
	return c.name
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelError, LevelCritical:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

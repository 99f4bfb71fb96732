package obs

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	Level  string
	Pretty bool
	App    string
	Env    string
	Ver    string
	Region string
}

// NewLogger builds the process logger: JSON with an ISO8601 "ts" key, or the colored console
// encoder when Pretty. An unknown level falls back to info and is reported once at startup.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	var badLevel bool
	if c.Level != "" {
		parsed, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			badLevel = true
		} else {
			level = parsed
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.Fields(serviceFields(c)...))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if badLevel {
		l.Warn("unknown log level; using info", zap.String("level", c.Level))
	}
	return l, nil
}

// serviceFields are stamped on every entry. Region and host are omitted when unknown.
func serviceFields(c LogConfig) []zap.Field {
	fields := []zap.Field{
		zap.String("service", c.App),
		zap.String("env", c.Env),
		zap.String("version", c.Ver),
	}
	if c.Region != "" {
		fields = append(fields, zap.String("region", c.Region))
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		fields = append(fields, zap.String("host", host))
	}
	return fields
}

package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ChannelConfig is the fixed publish policy of the channel delivery adapter.
var ChannelConfig = Config{
	MaxRetries:   3,
	InitialDelay: time.Second,
	MaxDelay:     16 * time.Second,
	Multiplier:   2,
}

func DefaultChannelPolicy(name string, log *zap.Logger) Policy {
	return WithLogging(Policy{Name: name, Config: ChannelConfig}, log)
}

// WithLogging attaches warn/error hooks to p.
func WithLogging(p Policy, log *zap.Logger) Policy {
	if log == nil {
		return p
	}
	p.OnAttempt = func(i int, err error) {
		log.Warn("publish retry", zap.String("policy", p.Name), zap.Int("attempt", i+1), zap.Error(err))
	}
	p.OnExhaust = func(err error) {
		if !errors.Is(err, context.Canceled) {
			log.Error("publish retries exhausted", zap.String("policy", p.Name), zap.Error(err))
		}
	}
	return p
}

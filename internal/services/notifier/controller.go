package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
	kafkax "github.com/NordCoder/Courier/internal/repository/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	messagesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_messages_consumed_total",
		Help: "Inbound messages consumed.",
	})
	messagesDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_messages_dead_lettered_total",
		Help: "Malformed inbound messages sent to the DLQ.",
	})
	messageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifier_message_duration_seconds",
		Help:    "Wall-clock time spent per inbound message.",
		Buckets: prometheus.DefBuckets,
	})
)

type EventProcessor interface {
	Process(ctx context.Context, raw []byte) (*Result, error)
}

type Subscriber interface {
	Consume(ctx context.Context, h kafkax.Handler) error
}

// Controller feeds inbound messages to the processor, one at a time, each under Budget.
type Controller struct {
	Log    *zap.Logger
	Sub    Subscriber
	UC     EventProcessor
	DLQ    notification.DeadLetters
	Budget time.Duration
}

func (c *Controller) Run(ctx context.Context) error {
	if err := c.Sub.Consume(ctx, c.Handle); err != nil && !errors.Is(err, context.Canceled) {
		c.Log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return ctx.Err()
}

// Handle returns nil for anything that should be committed, including malformed input once it
// is on the DLQ. Only a failed dead-letter write leaves the message uncommitted.
func (c *Controller) Handle(ctx context.Context, key, value []byte) error {
	messagesConsumed.Inc()
	start := time.Now()
	defer func() { messageDuration.Observe(time.Since(start).Seconds()) }()

	mctx := ctx
	if c.Budget > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, c.Budget)
		defer cancel()
	}

	_, err := c.UC.Process(mctx, value)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, notification.ErrMalformedEvent):
		c.Log.Warn("malformed event; dead-lettering", zap.ByteString("key", key), zap.Error(err))
		if c.DLQ == nil {
			return nil
		}
		if derr := c.DLQ.DeadLetter(ctx, key, value, err); derr != nil {
			c.Log.Error("dead-letter publish failed", zap.Error(derr))
			return derr
		}
		messagesDeadLettered.Inc()
		return nil
	default:
		c.Log.Error("process event", zap.Error(err))
		return err
	}
}

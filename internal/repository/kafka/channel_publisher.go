package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/obs/retry"
)

var ErrNoTopic = errors.New("no publish topic for channel")

var _ notification.Publisher = (*ChannelPublisher)(nil)

// ChannelPublisher routes channel messages to one topic per channel. Delivery attributes travel as headers.
type ChannelPublisher struct {
	byChannel map[notification.Channel]*Producer
}

func NewChannelPublisher(byChannel map[notification.Channel]*Producer) *ChannelPublisher {
	return &ChannelPublisher{byChannel: byChannel}
}

func (c *ChannelPublisher) Publish(ctx context.Context, m notification.Message) error {
	p, ok := c.byChannel[m.Channel]
	if !ok || p == nil {
		return retry.Permanent(fmt.Errorf("%w: %s", ErrNoTopic, m.Channel))
	}
	return p.Publish(ctx, []byte(m.Key), m.Payload, m.Attributes)
}

func (c *ChannelPublisher) Close() error {
	var errs []error
	for _, p := range c.byChannel {
		if p != nil {
			errs = append(errs, p.Close())
		}
	}
	return errors.Join(errs...)
}

var _ notification.DeadLetters = (*DeadLetterQueue)(nil)

type DeadLetterQueue struct{ p *Producer }

func NewDeadLetterQueue(p *Producer) *DeadLetterQueue { return &DeadLetterQueue{p: p} }

func (d *DeadLetterQueue) DeadLetter(ctx context.Context, key, value []byte, reason error) error {
	attrs := map[string]string{"error": "unknown"}
	if reason != nil {
		attrs["error"] = reason.Error()
	}
	return d.p.Publish(ctx, key, value, attrs)
}

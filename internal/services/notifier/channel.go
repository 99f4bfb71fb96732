package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxPayloadBytes caps one encoded channel message.
const MaxPayloadBytes = 256 << 10

var (
	ErrPayloadTooLarge  = errors.New("payload exceeds channel size limit")
	ErrMissingRecipient = errors.New("no recipient for channel")
	ErrUnknownChannel   = errors.New("unknown channel")
)

var channelPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifier_channel_publish_total",
	Help: "Channel adapter outcomes, by channel and status.",
}, []string{"channel", "status"})

// Outcome is the result of one channel delivery. Attempts is zero when nothing was published.
type Outcome struct {
	Success   bool
	Status    history.Status
	Err       error
	Attempts  int
	Recipient string
}

type ChannelAdapter struct {
	pub    notification.Publisher
	policy retry.Policy
	log    *zap.Logger
}

func NewChannelAdapter(pub notification.Publisher, policy retry.Policy, log *zap.Logger) *ChannelAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	if policy.Name == "" {
		policy.Name = "channel_publish"
	}
	return &ChannelAdapter{pub: pub, policy: policy, log: log.With(zap.String("component", "notifier.channel"))}
}

// RecipientFor picks the address a channel delivers to.
func RecipientFor(ch notification.Channel, r notification.Recipient) string {
	switch ch {
	case notification.ChannelEmail:
		return r.Email
	case notification.ChannelSMS:
		return r.Phone
	case notification.ChannelChat:
		return r.ChatWebhook
	case notification.ChannelWebhook:
		return r.WebhookURL
	}
	return ""
}

type emailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Format  string `json:"format"`
}

type smsMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type chatMessage struct {
	Webhook string          `json:"webhook"`
	Blocks  json.RawMessage `json:"blocks"`
}

type webhookMessage struct {
	URL     string          `json:"url"`
	Payload json.RawMessage `json:"payload"`
}

// encode builds the channel wire shape. Non-JSON bodies on JSON channels are carried as a string.
func encode(ch notification.Channel, to string, r Rendered) ([]byte, error) {
	switch ch {
	case notification.ChannelEmail:
		return json.Marshal(emailMessage{To: to, Subject: r.Subject, Body: r.Body, Format: string(r.Format)})
	case notification.ChannelSMS:
		return json.Marshal(smsMessage{To: to, Body: r.Body})
	case notification.ChannelChat:
		return json.Marshal(chatMessage{Webhook: to, Blocks: rawOrString(r.Body)})
	case notification.ChannelWebhook:
		return json.Marshal(webhookMessage{URL: to, Payload: rawOrString(r.Body)})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
}

func rawOrString(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

// Send publishes r on ch with the retry policy. Non-transient problems fail before any publish.
func (a *ChannelAdapter) Send(ctx context.Context, ch notification.Channel, r Rendered, ev notification.Event) Outcome {
	ctx, span := otel.Tracer("notifier.channel").Start(ctx, "channel.send",
		trace.WithAttributes(attribute.String("channel", string(ch)), attribute.String("event_id", ev.EventID)))
	defer span.End()

	out := a.send(ctx, ch, r, ev)
	if out.Err != nil {
		span.RecordError(out.Err)
	}
	channelPublishes.WithLabelValues(string(ch), string(out.Status)).Inc()
	return out
}

func (a *ChannelAdapter) send(ctx context.Context, ch notification.Channel, r Rendered, ev notification.Event) Outcome {
	fail := func(err error, attempts int, to string) Outcome {
		return Outcome{Status: history.StatusFailed, Err: err, Attempts: attempts, Recipient: to}
	}

	if !ch.Valid() {
		return fail(fmt.Errorf("%w: %q", ErrUnknownChannel, ch), 0, "")
	}
	to := RecipientFor(ch, ev.Payload.Recipient)
	if to == "" {
		return fail(fmt.Errorf("%w: %s", ErrMissingRecipient, ch), 0, "")
	}
	payload, err := encode(ch, to, r)
	if err != nil {
		return fail(err, 0, to)
	}
	if len(payload) > MaxPayloadBytes {
		return fail(fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), MaxPayloadBytes), 0, to)
	}

	msg := notification.Message{
		Channel:    ch,
		Key:        ev.Payload.UserID,
		Recipient:  to,
		Subject:    r.Subject,
		Body:       r.Body,
		Payload:    payload,
		Attributes: map[string]string{
			"channel":    string(ch),
			"recipient":  to,
			"event_type": string(ev.EventType),
			"event_id":   ev.EventID,
		},
	}

	attempts, err := retry.Do(ctx, func(ctx context.Context) error {
		return a.pub.Publish(ctx, msg)
	}, a.policy)
	if err != nil {
		a.log.Warn("channel publish failed",
			zap.String("channel", string(ch)),
			zap.String("event_id", ev.EventID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return fail(err, attempts, to)
	}
	return Outcome{Success: true, Status: history.StatusSent, Attempts: attempts, Recipient: to}
}

// PublisherMux routes a message by channel, falling back to a default publisher.
type PublisherMux struct {
	routes   map[notification.Channel]notification.Publisher
	fallback notification.Publisher
}

func NewPublisherMux(fallback notification.Publisher) *PublisherMux {
	return &PublisherMux{routes: map[notification.Channel]notification.Publisher{}, fallback: fallback}
}

func (m *PublisherMux) Route(ch notification.Channel, p notification.Publisher) *PublisherMux {
	m.routes[ch] = p
	return m
}

func (m *PublisherMux) Publish(ctx context.Context, msg notification.Message) error {
	if p, ok := m.routes[msg.Channel]; ok {
		return p.Publish(ctx, msg)
	}
	if m.fallback == nil {
		return retry.Permanent(fmt.Errorf("%w: %q", ErrUnknownChannel, msg.Channel))
	}
	return m.fallback.Publish(ctx, msg)
}

// SenderPublisher delivers channel messages through a direct Sender such as the SMTP mailer.
type SenderPublisher struct {
	Sender notification.Sender
}

func (s SenderPublisher) Publish(ctx context.Context, m notification.Message) error {
	return s.Sender.Send(ctx, m.Recipient, m.Subject, m.Body)
}

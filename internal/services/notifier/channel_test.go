package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/obs/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// instant keeps the channel retry shape without real sleeps.
var instant = retry.Policy{Name: "test", Config: retry.Config{MaxRetries: 3}}

func testEvent() notification.Event {
	return notification.Event{
		EventType: notification.EventTestFailed,
		EventID:   "e-1",
		Payload: notification.Payload{
			UserID: "u-1",
			Recipient: notification.Recipient{
				Email:       "ann@example.com",
				Phone:       "+15550001111",
				ChatWebhook: "https://chat.example.com/hook",
				WebhookURL:  "https://hooks.example.com/in",
			},
		},
	}
}

func TestChannelSend_PublishesWithAttributes(t *testing.T) {
	pub := &fakePublisher{}
	a := NewChannelAdapter(pub, instant, zaptest.NewLogger(t))

	out := a.Send(context.Background(), notification.ChannelEmail, Rendered{Subject: "S", Body: "B", Format: notification.FormatText}, testEvent())
	require.True(t, out.Success, out.Err)
	assert.Equal(t, history.StatusSent, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, "ann@example.com", out.Recipient)

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, map[string]string{
		"channel":    "email",
		"recipient":  "ann@example.com",
		"event_type": "test_failed",
		"event_id":   "e-1",
	}, m.Attributes)
	assert.Equal(t, "u-1", m.Key)

	var body emailMessage
	require.NoError(t, json.Unmarshal(m.Payload, &body))
	assert.Equal(t, emailMessage{To: "ann@example.com", Subject: "S", Body: "B", Format: "text"}, body)
}

func TestChannelSend_ChatAndWebhookShapes(t *testing.T) {
	pub := &fakePublisher{}
	a := NewChannelAdapter(pub, instant, nil)

	out := a.Send(context.Background(), notification.ChannelChat, Rendered{Body: `[{"type":"section"}]`}, testEvent())
	require.True(t, out.Success)
	out = a.Send(context.Background(), notification.ChannelWebhook, Rendered{Body: "not json"}, testEvent())
	require.True(t, out.Success)

	require.Len(t, pub.msgs, 2)
	assert.JSONEq(t, `{"webhook":"https://chat.example.com/hook","blocks":[{"type":"section"}]}`, string(pub.msgs[0].Payload))
	assert.JSONEq(t, `{"url":"https://hooks.example.com/in","payload":"not json"}`, string(pub.msgs[1].Payload))
}

func TestChannelSend_RetriesTransientFailures(t *testing.T) {
	pub := &fakePublisher{fails: 2}
	a := NewChannelAdapter(pub, instant, zaptest.NewLogger(t))

	out := a.Send(context.Background(), notification.ChannelSMS, Rendered{Body: "hi"}, testEvent())
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.Attempts)
	assert.Len(t, pub.msgs, 1)
}

func TestChannelSend_ExhaustsRetries(t *testing.T) {
	pub := &fakePublisher{fails: 100}
	a := NewChannelAdapter(pub, instant, zaptest.NewLogger(t))

	out := a.Send(context.Background(), notification.ChannelSMS, Rendered{Body: "hi"}, testEvent())
	assert.False(t, out.Success)
	assert.Equal(t, history.StatusFailed, out.Status)
	assert.Equal(t, 4, out.Attempts)
	assert.EqualError(t, out.Err, "broker unavailable")
}

func TestChannelSend_PermanentErrorStops(t *testing.T) {
	pub := &fakePublisher{fails: 100, err: retry.Permanent(errors.New("no topic"))}
	a := NewChannelAdapter(pub, instant, nil)

	out := a.Send(context.Background(), notification.ChannelSMS, Rendered{Body: "hi"}, testEvent())
	assert.False(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
}

func TestChannelSend_OversizedNeverPublishes(t *testing.T) {
	pub := &fakePublisher{}
	a := NewChannelAdapter(pub, instant, nil)

	out := a.Send(context.Background(), notification.ChannelEmail, Rendered{Body: strings.Repeat("x", MaxPayloadBytes)}, testEvent())
	assert.False(t, out.Success)
	assert.Equal(t, history.StatusFailed, out.Status)
	assert.Equal(t, 0, out.Attempts)
	assert.ErrorIs(t, out.Err, ErrPayloadTooLarge)
	assert.Zero(t, pub.calls)
}

func TestChannelSend_MissingRecipientAndUnknownChannel(t *testing.T) {
	pub := &fakePublisher{}
	a := NewChannelAdapter(pub, instant, nil)
	ev := testEvent()
	ev.Payload.Recipient.Phone = ""

	out := a.Send(context.Background(), notification.ChannelSMS, Rendered{Body: "hi"}, ev)
	assert.ErrorIs(t, out.Err, ErrMissingRecipient)
	assert.Equal(t, 0, out.Attempts)

	out = a.Send(context.Background(), notification.Channel("fax"), Rendered{Body: "hi"}, ev)
	assert.ErrorIs(t, out.Err, ErrUnknownChannel)
	assert.Zero(t, pub.calls)
}

type senderFunc func(ctx context.Context, to, subject, body string) error

func (f senderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

func TestPublisherMux(t *testing.T) {
	kafka := &fakePublisher{}
	var mailed []string
	mux := NewPublisherMux(kafka).Route(notification.ChannelEmail, SenderPublisher{Sender: senderFunc(
		func(_ context.Context, to, subject, body string) error {
			mailed = append(mailed, to+"|"+subject+"|"+body)
			return nil
		})})

	require.NoError(t, mux.Publish(context.Background(), notification.Message{Channel: notification.ChannelEmail, Recipient: "a@b.c", Subject: "s", Body: "b"}))
	require.NoError(t, mux.Publish(context.Background(), notification.Message{Channel: notification.ChannelSMS}))

	assert.Equal(t, []string{"a@b.c|s|b"}, mailed)
	assert.Len(t, kafka.msgs, 1)

	err := NewPublisherMux(nil).Publish(context.Background(), notification.Message{Channel: notification.ChannelChat})
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.True(t, retry.IsPermanent(err))
}

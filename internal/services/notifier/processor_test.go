package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func allTemplates() *fakeTemplateRepo {
	return newFakeTemplateRepo(
		&template.Template{ID: "t-email", EventType: notification.EventTestFailed, Channel: notification.ChannelEmail,
			Format: notification.FormatText, Subject: "{{testName}} failed", Body: "error: {{errorMessage}}"},
		&template.Template{ID: "t-sms", EventType: notification.EventTestFailed, Channel: notification.ChannelSMS,
			Format: notification.FormatText, Body: "{{testName}} failed"},
		&template.Template{ID: "t-chat", EventType: notification.EventTestFailed, Channel: notification.ChannelChat,
			Format: notification.FormatBlocks, Body: `[{"type":"section","text":"{{testName}}"}]`},
	)
}

func rawEvent(t *testing.T, ev notification.Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func validEvent() notification.Event {
	ev := testEvent()
	ev.Timestamp = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ev.Payload.TestName = "checkout"
	ev.Payload.ErrorMessage = "token=abc expired"
	return ev
}

type harness struct {
	proc  *Processor
	pub   *fakePublisher
	rec   *fakeRecorder
	relay *fakeRelay
}

func newHarness(t *testing.T, d Decision, tpls *fakeTemplateRepo) *harness {
	h := &harness{pub: &fakePublisher{}, rec: &fakeRecorder{}, relay: &fakeRelay{}}
	h.proc = NewProcessor(ProcessorDeps{
		Policy:    stubPolicy{d},
		Templates: tpls,
		Relay:     h.relay,
		Channels:  NewChannelAdapter(h.pub, instant, nil),
		Ledger:    h.rec,
		Log:       zaptest.NewLogger(t),
	})
	return h
}

var threeChannels = Decision{Send: true, Channels: []notification.Channel{
	notification.ChannelEmail, notification.ChannelSMS, notification.ChannelChat,
}}

func TestProcess_OneRecordPerChannel(t *testing.T) {
	h := newHarness(t, threeChannels, allTemplates())

	res, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)
	assert.Equal(t, StateRecorded, res.State)
	require.Len(t, res.Channels, 3)
	assert.Empty(t, res.Skipped)

	require.Len(t, h.rec.entries, 3)
	for ch, e := range h.rec.byChannel() {
		assert.Equal(t, history.StatusSent, e.Status, ch)
		assert.Equal(t, history.MethodChannel, e.Method, ch)
		assert.Equal(t, "e-1", e.EventID)
		assert.Equal(t, "u-1", e.UserID)
		assert.Equal(t, 0, e.RetryCount)
	}
	assert.Len(t, h.pub.msgs, 3)

	email := h.rec.byChannel()[notification.ChannelEmail]
	assert.Equal(t, "ann@example.com", email.Recipient)
	assert.Equal(t, "checkout failed", email.Metadata["subject"])
	assert.Equal(t, "t-email", email.Metadata["template_id"])
}

func TestProcess_RedactsBeforePublish(t *testing.T) {
	h := newHarness(t, Decision{Send: true, Channels: []notification.Channel{notification.ChannelEmail}}, allTemplates())

	_, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)
	require.Len(t, h.pub.msgs, 1)
	assert.Equal(t, "error: token=[REDACTED] expired", h.pub.msgs[0].Body)
}

func TestProcess_SuppressedWritesExactlyOneRecord(t *testing.T) {
	h := newHarness(t, Decision{Reason: ReasonQuietHours}, allTemplates())

	res, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)
	assert.Equal(t, StateSuppressed, res.State)

	require.Len(t, h.rec.entries, 1)
	e := h.rec.entries[0]
	assert.Equal(t, notification.ChannelNone, e.Channel)
	assert.Equal(t, history.StatusSuppressed, e.Status)
	assert.Equal(t, history.MethodNone, e.Method)
	assert.Equal(t, "quiet_hours", e.ErrorMessage)
	assert.Zero(t, h.pub.calls)
}

func TestProcess_MissingTemplateRecordsSkipped(t *testing.T) {
	tpls := allTemplates()
	delete(tpls.tpls, tplKey(notification.EventTestFailed, notification.ChannelSMS))
	h := newHarness(t, threeChannels, tpls)

	_, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)

	byCh := h.rec.byChannel()
	require.Len(t, byCh, 3)
	assert.Equal(t, history.StatusSkipped, byCh[notification.ChannelSMS].Status)
	assert.Contains(t, byCh[notification.ChannelSMS].ErrorMessage, "no template")
	assert.Equal(t, history.StatusSent, byCh[notification.ChannelEmail].Status)
	assert.Len(t, h.pub.msgs, 2)
}

func TestProcess_FailureIsolatedPerChannel(t *testing.T) {
	h := newHarness(t, threeChannels, allTemplates())
	ev := validEvent()
	ev.Payload.Recipient.Phone = ""

	_, err := h.proc.Process(context.Background(), rawEvent(t, ev))
	require.NoError(t, err)

	byCh := h.rec.byChannel()
	assert.Equal(t, history.StatusFailed, byCh[notification.ChannelSMS].Status)
	assert.Contains(t, byCh[notification.ChannelSMS].ErrorMessage, "no recipient")
	assert.Equal(t, history.StatusSent, byCh[notification.ChannelEmail].Status)
	assert.Equal(t, history.StatusSent, byCh[notification.ChannelChat].Status)
}

func TestProcess_RelaySuccessSkipsChannelAdapter(t *testing.T) {
	h := newHarness(t, Decision{Send: true, Channels: []notification.Channel{notification.ChannelEmail}}, allTemplates())
	h.relay.enabled = true
	h.relay.result = RelayResult{Success: true, StatusCode: 202, Duration: 15 * time.Millisecond}

	_, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)

	require.Len(t, h.rec.entries, 1)
	e := h.rec.entries[0]
	assert.Equal(t, history.MethodRelay, e.Method)
	assert.Equal(t, history.StatusSent, e.Status)
	assert.Equal(t, "202", e.Metadata["relay_status"])
	assert.Zero(t, h.pub.calls)
	require.Len(t, h.relay.sent, 1)
	assert.Equal(t, "checkout failed", h.relay.sent[0].Subject)
}

func TestProcess_RelayDataIsRedacted(t *testing.T) {
	h := newHarness(t, Decision{Send: true, Channels: []notification.Channel{notification.ChannelEmail}}, allTemplates())
	h.relay.enabled = true
	h.relay.result = RelayResult{Success: true, StatusCode: 200}

	ev := validEvent()
	ev.Payload.FailedSteps = []string{"login with password=pw-step"}
	ev.Payload.Details = map[string]any{
		"db":    map[string]any{"dsn": "postgres://app?password=pw-nested"},
		"calls": []any{"Authorization: Bearer tok-in-list", 3},
	}
	ev.Payload.Summary = map[string]any{"note": "api_key=k-summary", "passed": 10}

	_, err := h.proc.Process(context.Background(), rawEvent(t, ev))
	require.NoError(t, err)

	require.Len(t, h.relay.sent, 1)
	sent := h.relay.sent[0]
	assert.Equal(t, "token=[REDACTED] expired", sent.Payload.ErrorMessage)
	assert.Equal(t, "u-1", sent.Payload.UserID)
	assert.Equal(t, "ann@example.com", sent.Payload.Recipient.Email)

	b, err := json.Marshal(sent)
	require.NoError(t, err)
	for _, secret := range []string{"token=abc", "pw-step", "pw-nested", "tok-in-list", "k-summary"} {
		assert.NotContains(t, string(b), secret)
	}
	assert.Contains(t, string(b), `"passed":10`)
}

func TestProcess_RelayFailureFallsBack(t *testing.T) {
	h := newHarness(t, Decision{Send: true, Channels: []notification.Channel{notification.ChannelEmail}}, allTemplates())
	h.relay.enabled = true
	h.relay.result = RelayResult{Err: &TimeoutError{After: 10 * time.Second}}

	_, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)

	require.Len(t, h.rec.entries, 1)
	e := h.rec.entries[0]
	assert.Equal(t, history.MethodChannel, e.Method)
	assert.Equal(t, history.StatusSent, e.Status)
	assert.Equal(t, "timed out after 10000ms", e.Metadata["relay_error"])
	assert.Len(t, h.pub.msgs, 1)
}

func TestProcess_MalformedWritesNothing(t *testing.T) {
	h := newHarness(t, threeChannels, allTemplates())

	for name, raw := range map[string][]byte{
		"not json":      []byte("{oops"),
		"missing user":  rawEvent(t, notification.Event{EventType: notification.EventTestFailed, EventID: "e", Timestamp: time.Now()}),
		"unknown type":  rawEvent(t, func() notification.Event { ev := validEvent(); ev.EventType = "deploy"; return ev }()),
		"bad recipient": rawEvent(t, func() notification.Event { ev := validEvent(); ev.Payload.Recipient.Email = "nope"; return ev }()),
	} {
		_, err := h.proc.Process(context.Background(), raw)
		assert.ErrorIs(t, err, notification.ErrMalformedEvent, name)
	}
	assert.Empty(t, h.rec.entries)
	assert.Zero(t, h.pub.calls)
}

func TestProcess_SkipsChannelsWithoutBudget(t *testing.T) {
	h := newHarness(t, threeChannels, allTemplates())
	h.proc.minChannelTime = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := h.proc.Process(ctx, rawEvent(t, validEvent()))
	require.NoError(t, err)
	assert.Len(t, res.Skipped, 3)
	assert.Empty(t, res.Channels)
	assert.Empty(t, h.rec.entries)
}

type panickyChannels struct{ inner ChannelSender }

func (p panickyChannels) Send(ctx context.Context, ch notification.Channel, r Rendered, ev notification.Event) Outcome {
	if ch == notification.ChannelSMS {
		panic("sms gateway exploded")
	}
	return p.inner.Send(ctx, ch, r, ev)
}

func TestProcess_PanicInOneChannelDoesNotAbortOthers(t *testing.T) {
	h := newHarness(t, threeChannels, allTemplates())
	h.proc.channels = panickyChannels{inner: h.proc.channels}

	res, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)
	require.Len(t, res.Channels, 3)

	byCh := h.rec.byChannel()
	assert.Equal(t, history.StatusFailed, byCh[notification.ChannelSMS].Status)
	assert.Equal(t, "channel delivery panicked", byCh[notification.ChannelSMS].ErrorMessage)
	assert.Equal(t, history.StatusSent, byCh[notification.ChannelEmail].Status)
	assert.Equal(t, history.StatusSent, byCh[notification.ChannelChat].Status)
}

func TestProcess_LedgerErrorDoesNotFailEvent(t *testing.T) {
	h := newHarness(t, threeChannels, allTemplates())
	h.rec.err = errors.New("db down")

	res, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)
	for _, cr := range res.Channels {
		assert.Empty(t, cr.RecordID)
		assert.Equal(t, StateDeliveryAttempted, cr.State)
	}
}

func TestProcess_TemplateStoreErrorRecordsFailed(t *testing.T) {
	tpls := allTemplates()
	tpls.err = errors.New("timeout")
	h := newHarness(t, Decision{Send: true, Channels: []notification.Channel{notification.ChannelEmail}}, tpls)

	_, err := h.proc.Process(context.Background(), rawEvent(t, validEvent()))
	require.NoError(t, err)
	require.Len(t, h.rec.entries, 1)
	assert.Equal(t, history.StatusFailed, h.rec.entries[0].Status)
	assert.Zero(t, h.pub.calls)
}

package notification

import (
	"context"
	"time"
)

type EventType string

const (
	EventTestStarted      EventType = "test_started"
	EventTestCompleted    EventType = "test_completed"
	EventTestFailed       EventType = "test_failed"
	EventCriticalAlert    EventType = "critical_alert"
	EventAnalysisComplete EventType = "analysis_complete"
	EventDailySummary     EventType = "daily_summary"
	EventWeeklySummary    EventType = "weekly_summary"
)

var KnownEventTypes = []EventType{
	EventTestStarted,
	EventTestCompleted,
	EventTestFailed,
	EventCriticalAlert,
	EventAnalysisComplete,
	EventDailySummary,
	EventWeeklySummary,
}

// IsCritical reports whether delivery of the event bypasses user preferences.
func (t EventType) IsCritical() bool { return t == EventCriticalAlert }

func (t EventType) Known() bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelChat    Channel = "chat"
	ChannelWebhook Channel = "webhook"

	// ChannelNone marks ledger rows written before channel fan-out (policy suppression).
	ChannelNone Channel = "none"
)

var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelChat, ChannelWebhook}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelChat, ChannelWebhook:
		return true
	}
	return false
}

type Format string

const (
	FormatText   Format = "text"
	FormatHTML   Format = "html"
	FormatBlocks Format = "blocks"
	FormatJSON   Format = "json"
)

// Event is the inbound message consumed by the notifier.
type Event struct {
	EventType EventType `json:"eventType" validate:"required"`
	EventID   string    `json:"eventId" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Payload   Payload   `json:"payload" validate:"required"`
}

type Recipient struct {
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string `json:"phone,omitempty" validate:"omitempty,e164"`
	ChatWebhook string `json:"chatWebhook,omitempty" validate:"omitempty,url"`
	WebhookURL  string `json:"webhookUrl,omitempty" validate:"omitempty,url"`
}

// Payload carries the event data. Optional fields stay zero when the producer omits them.
type Payload struct {
	UserID       string         `json:"userId" validate:"required"`
	Recipient    Recipient      `json:"recipient"`
	ProjectName  string         `json:"projectName,omitempty"`
	TestID       string         `json:"testId,omitempty"`
	TestName     string         `json:"testName,omitempty"`
	Status       string         `json:"status,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	DurationMs   int64          `json:"durationMs,omitempty" validate:"gte=0"`
	FailedSteps  []string       `json:"failedSteps,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	ReportURL    string         `json:"reportUrl,omitempty" validate:"omitempty,url"`
	Summary      map[string]any `json:"summary,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Sender delivers a plain message to a single address (used by direct transports).
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

package history

import (
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
	StatusSkipped    Status = "skipped"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed, StatusSuppressed, StatusSkipped:
		return true
	}
	return false
}

type Method string

const (
	MethodRelay   Method = "relay"
	MethodChannel Method = "channel"
	MethodNone    Method = "none"
)

// DefaultRetention is how long a record stays queryable before the pruner may drop it.
const DefaultRetention = 90 * 24 * time.Hour

type Record struct {
	ID             string                 `json:"notificationId"`
	UserID         string                 `json:"userId"`
	EventType      notification.EventType `json:"eventType"`
	EventID        string                 `json:"eventId"`
	Channel        notification.Channel   `json:"channel"`
	DeliveryMethod Method                 `json:"deliveryMethod"`
	DeliveryStatus Status                 `json:"deliveryStatus"`
	Recipient      string                 `json:"recipient"`
	RetryCount     int                    `json:"retryCount"`
	Metadata       map[string]string      `json:"metadata,omitempty"`
	SentAt         time.Time              `json:"sentAt"`
	// TTL is the retention horizon in epoch seconds.
	TTL          int64      `json:"ttl"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

type Filter struct {
	UserID    string
	EventType notification.EventType
	Channel   notification.Channel
	Status    Status
	From      time.Time
	To        time.Time
	Limit     int
	Cursor    string
}

type Page struct {
	Items      []*Record `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

package template

import (
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
)

type Template struct {
	ID        string                 `json:"templateId"`
	EventType notification.EventType `json:"eventType"`
	Channel   notification.Channel   `json:"channel"`
	Format    notification.Format    `json:"format"`
	Subject   string                 `json:"subject,omitempty"`
	Body      string                 `json:"body"`
	Variables []string               `json:"variables"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

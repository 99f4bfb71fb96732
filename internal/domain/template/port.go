package template

import (
	"context"
	"errors"

	"github.com/NordCoder/Courier/internal/domain/notification"
)

var (
	ErrNotFound  = errors.New("template not found")
	ErrDuplicate = errors.New("template already registered for event type and channel")
)

type Repo interface {
	// Get returns the single template registered for the pair.
	Get(ctx context.Context, et notification.EventType, ch notification.Channel) (*Template, error)
	Create(ctx context.Context, t *Template) error
	Update(ctx context.Context, t *Template) error
	List(ctx context.Context) ([]*Template, error)
}

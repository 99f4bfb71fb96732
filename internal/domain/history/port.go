package history

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("history record not found")

type Repo interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	UpdateStatus(ctx context.Context, id string, status Status, deliveredAt *time.Time) error
	Query(ctx context.Context, f Filter) (*Page, error)
	CountSent(ctx context.Context, userID string, since time.Time) (int, error)
	DeleteExpired(ctx context.Context, nowEpoch int64, limit int) (int64, error)
}

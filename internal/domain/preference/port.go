package preference

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("preferences not found")

type Repo interface {
	Get(ctx context.Context, userID string) (*Preferences, error)
	Upsert(ctx context.Context, p *Preferences) error
}

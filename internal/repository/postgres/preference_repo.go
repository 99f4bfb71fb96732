package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/preference"
	"github.com/jackc/pgx/v5"
)

var _ preference.Repo = (*PreferenceRepo)(nil)

type PreferenceRepo struct{ db *DB }

func NewPreferenceRepo(db *DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

const (
	qPrefGet = `
SELECT user_id, events, quiet_hours, frequency_limit, created_at, updated_at
FROM notification_preferences
WHERE user_id = $1;`

	qPrefUpsert = `
INSERT INTO notification_preferences (user_id, events, quiet_hours, frequency_limit)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET events          = EXCLUDED.events,
    quiet_hours     = EXCLUDED.quiet_hours,
    frequency_limit = EXCLUDED.frequency_limit,
    updated_at      = NOW()
RETURNING created_at, updated_at;`
)

func (r *PreferenceRepo) Get(ctx context.Context, userID string) (*preference.Preferences, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		p                      preference.Preferences
		events, quiet, freqLim []byte
	)
	if err := r.db.Pool.QueryRow(ctx, qPrefGet, userID).
		Scan(&p.UserID, &events, &quiet, &freqLim, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(preference.ErrNotFound)
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	p.Events = map[notification.EventType]preference.EventPreference{}
	if err := unmarshalNullable(events, &p.Events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if len(quiet) > 0 && string(quiet) != "null" {
		p.QuietHours = &preference.QuietHours{}
		if err := json.Unmarshal(quiet, p.QuietHours); err != nil {
			return nil, fmt.Errorf("decode quiet_hours: %w", err)
		}
	}
	if len(freqLim) > 0 && string(freqLim) != "null" {
		p.FrequencyLimit = &preference.FrequencyLimit{}
		if err := json.Unmarshal(freqLim, p.FrequencyLimit); err != nil {
			return nil, fmt.Errorf("decode frequency_limit: %w", err)
		}
	}
	return &p, nil
}

func (r *PreferenceRepo) Upsert(ctx context.Context, p *preference.Preferences) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	events, err := json.Marshal(p.Events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	quiet, err := json.Marshal(p.QuietHours)
	if err != nil {
		return fmt.Errorf("encode quiet_hours: %w", err)
	}
	freqLim, err := json.Marshal(p.FrequencyLimit)
	if err != nil {
		return fmt.Errorf("encode frequency_limit: %w", err)
	}

	if err := r.db.Pool.QueryRow(ctx, qPrefUpsert, p.UserID, events, quiet, freqLim).
		Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

func unmarshalNullable(b []byte, v any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, v)
}

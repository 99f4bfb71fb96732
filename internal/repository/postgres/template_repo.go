package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/template"
	"github.com/jackc/pgx/v5"
)

var _ template.Repo = (*TemplateRepo)(nil)

type TemplateRepo struct{ db *DB }

func NewTemplateRepo(db *DB) *TemplateRepo { return &TemplateRepo{db: db} }

const (
	templateCols = `id, event_type, channel, format, subject, body, variables, created_at, updated_at`

	qTplGet = `
SELECT ` + templateCols + `
FROM notification_templates
WHERE event_type = $1 AND channel = $2;`

	qTplInsert = `
INSERT INTO notification_templates (id, event_type, channel, format, subject, body, variables)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::text[], '{}'))
RETURNING created_at, updated_at;`

	qTplUpdate = `
UPDATE notification_templates
SET format = $2, subject = $3, body = $4, variables = COALESCE($5::text[], '{}'), updated_at = NOW()
WHERE id = $1
RETURNING event_type, channel, created_at, updated_at;`

	qTplList = `
SELECT ` + templateCols + `
FROM notification_templates
ORDER BY event_type, channel;`
)

func scanTemplate(row pgx.Row, t *template.Template) error {
	var et, ch, format string
	if err := row.Scan(&t.ID, &et, &ch, &format, &t.Subject, &t.Body, &t.Variables, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(template.ErrNotFound)
		}
		return fmt.Errorf("scan template: %w", err)
	}
	t.EventType = notification.EventType(et)
	t.Channel = notification.Channel(ch)
	t.Format = notification.Format(format)
	return nil
}

func (r *TemplateRepo) Get(ctx context.Context, et notification.EventType, ch notification.Channel) (*template.Template, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t template.Template
	if err := scanTemplate(r.db.Pool.QueryRow(ctx, qTplGet, string(et), string(ch)), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create rejects a second template for the same (event type, channel) with
// template.ErrDuplicate, which also matches ErrConflict.
func (r *TemplateRepo) Create(ctx context.Context, t *template.Template) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qTplInsert,
		t.ID, string(t.EventType), string(t.Channel), string(t.Format), t.Subject, t.Body, t.Variables,
	).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return conflict(template.ErrDuplicate)
		}
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) Update(ctx context.Context, t *template.Template) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var et, ch string
	if err := r.db.Pool.QueryRow(ctx, qTplUpdate,
		t.ID, string(t.Format), t.Subject, t.Body, t.Variables,
	).Scan(&et, &ch, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(template.ErrNotFound)
		}
		return fmt.Errorf("update template: %w", err)
	}
	t.EventType = notification.EventType(et)
	t.Channel = notification.Channel(ch)
	return nil
}

func (r *TemplateRepo) List(ctx context.Context) ([]*template.Template, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qTplList)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []*template.Template
	for rows.Next() {
		var t template.Template
		if err := scanTemplate(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

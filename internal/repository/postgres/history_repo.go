package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/jackc/pgx/v5"
)

var _ history.Repo = (*HistoryRepo)(nil)

type HistoryRepo struct{ db *DB }

func NewHistoryRepo(db *DB) *HistoryRepo { return &HistoryRepo{db: db} }

const (
	defaultPageSize = 50
	maxPageSize     = 500

	historyCols = `id, user_id, event_type, event_id, channel, delivery_method, delivery_status,
recipient, retry_count, metadata, sent_at, ttl, delivered_at, error_message`

	qHistInsert = `
INSERT INTO notification_history (id, user_id, event_type, event_id, channel, delivery_method,
    delivery_status, recipient, retry_count, metadata, sent_at, ttl, delivered_at, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);`

	qHistByID = `
SELECT ` + historyCols + `
FROM notification_history
WHERE id = $1;`

	qHistByIDForUpdate = `
SELECT ` + historyCols + `
FROM notification_history
WHERE id = $1
FOR UPDATE;`

	qHistUpdateStatus = `
UPDATE notification_history
SET delivery_status = $2,
    delivered_at    = COALESCE($3, delivered_at)
WHERE id = $1;`

	qHistCountSent = `
SELECT COUNT(*)
FROM notification_history
WHERE user_id = $1 AND sent_at >= $2 AND delivery_status IN ('sent', 'delivered');`

	qHistDeleteExpired = `
DELETE FROM notification_history
WHERE id IN (
    SELECT id FROM notification_history
    WHERE ttl < $1
    ORDER BY ttl
    LIMIT $2
);`
)

func scanRecord(row pgx.Row, r *history.Record) error {
	var (
		et, ch, method, status string
		meta                   []byte
	)
	if err := row.Scan(&r.ID, &r.UserID, &et, &r.EventID, &ch, &method, &status,
		&r.Recipient, &r.RetryCount, &meta, &r.SentAt, &r.TTL, &r.DeliveredAt, &r.ErrorMessage); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound(history.ErrNotFound)
		}
		return fmt.Errorf("scan history: %w", err)
	}
	r.EventType = notification.EventType(et)
	r.Channel = notification.Channel(ch)
	r.DeliveryMethod = history.Method(method)
	r.DeliveryStatus = history.Status(status)
	if err := unmarshalNullable(meta, &r.Metadata); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}

func (r *HistoryRepo) Create(ctx context.Context, rec *history.Record) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := r.db.execQueryer(ctx).Exec(ctx, qHistInsert,
		rec.ID, rec.UserID, string(rec.EventType), rec.EventID, string(rec.Channel),
		string(rec.DeliveryMethod), string(rec.DeliveryStatus), rec.Recipient, rec.RetryCount,
		meta, rec.SentAt, rec.TTL, rec.DeliveredAt, rec.ErrorMessage,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) GetByID(ctx context.Context, id string) (*history.Record, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	q := qHistByID
	if inTx(ctx) {
		q = qHistByIDForUpdate
	}
	var rec history.Record
	if err := scanRecord(r.db.execQueryer(ctx).QueryRow(ctx, q, id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *HistoryRepo) UpdateStatus(ctx context.Context, id string, status history.Status, deliveredAt *time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.execQueryer(ctx).Exec(ctx, qHistUpdateStatus, id, string(status), deliveredAt)
	if err != nil {
		return fmt.Errorf("update history status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return notFound(history.ErrNotFound)
	}
	return nil
}

func (r *HistoryRepo) Query(ctx context.Context, f history.Filter) (*history.Page, error) {
	sql, args, limit, err := buildHistoryQuery(f)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	page := &history.Page{Items: make([]*history.Record, 0, limit)}
	for rows.Next() {
		var rec history.Record
		if err := scanRecord(rows, &rec); err != nil {
			return nil, err
		}
		page.Items = append(page.Items, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = encodeCursor(cursor{SentAt: last.SentAt, ID: last.ID})
	}
	return page, nil
}

// buildHistoryQuery fetches one row past limit so the caller can tell whether a next page exists.
func buildHistoryQuery(f history.Filter) (string, []any, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.EventType != "" {
		add("event_type = ?", string(f.EventType))
	}
	if f.Channel != "" {
		add("channel = ?", string(f.Channel))
	}
	if f.Status != "" {
		add("delivery_status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		add("sent_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("sent_at <= ?", f.To)
	}
	if f.Cursor != "" {
		c, err := decodeCursor(f.Cursor)
		if err != nil {
			return "", nil, 0, err
		}
		args = append(args, c.SentAt, c.ID)
		where = append(where, fmt.Sprintf("(sent_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(historyCols)
	b.WriteString("\nFROM notification_history")
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, limit+1)
	fmt.Fprintf(&b, "\nORDER BY sent_at DESC, id DESC\nLIMIT $%d;", len(args))
	return b.String(), args, limit, nil
}

func (r *HistoryRepo) CountSent(ctx context.Context, userID string, since time.Time) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.db.Pool.QueryRow(ctx, qHistCountSent, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sent: %w", err)
	}
	return n, nil
}

func (r *HistoryRepo) DeleteExpired(ctx context.Context, nowEpoch int64, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qHistDeleteExpired, nowEpoch, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired history: %w", err)
	}
	return cmd.RowsAffected(), nil
}

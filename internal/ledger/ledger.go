package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	ErrInvalidStatus     = errors.New("invalid delivery status")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

var ledgerRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_records_total",
	Help: "History records written, by channel and status.",
}, []string{"channel", "status"})

// Entry is what a caller knows about one delivery attempt; the ledger fills id, sentAt and ttl.
type Entry struct {
	UserID       string
	EventType    notification.EventType
	EventID      string
	Channel      notification.Channel
	Method       history.Method
	Status       history.Status
	Recipient    string
	RetryCount   int
	Metadata     map[string]string
	ErrorMessage string
	DeliveredAt  *time.Time
}

// Tx runs fn in a single database transaction.
type Tx interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Ledger struct {
	repo      history.Repo
	tx        Tx
	clock     notification.Clock
	retention time.Duration
	log       *zap.Logger
}

func New(repo history.Repo, tx Tx, clock notification.Clock, retention time.Duration, log *zap.Logger) *Ledger {
	if retention <= 0 {
		retention = history.DefaultRetention
	}
	if clock == nil {
		clock = notification.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		repo:      repo,
		tx:        tx,
		clock:     clock,
		retention: retention,
		log:       log.With(zap.String("component", "ledger")),
	}
}

func (l *Ledger) Record(ctx context.Context, e Entry) (*history.Record, error) {
	if !e.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, e.Status)
	}
	now := l.clock.Now().UTC()
	rec := &history.Record{
		ID:             uuid.NewString(),
		UserID:         e.UserID,
		EventType:      e.EventType,
		EventID:        e.EventID,
		Channel:        e.Channel,
		DeliveryMethod: e.Method,
		DeliveryStatus: e.Status,
		Recipient:      e.Recipient,
		RetryCount:     e.RetryCount,
		Metadata:       e.Metadata,
		SentAt:         now,
		TTL:            now.Add(l.retention).Unix(),
		DeliveredAt:    e.DeliveredAt,
		ErrorMessage:   e.ErrorMessage,
	}
	if rec.DeliveryMethod == "" {
		rec.DeliveryMethod = history.MethodNone
	}
	if err := l.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("record history: %w", err)
	}
	ledgerRecords.WithLabelValues(string(rec.Channel), string(rec.DeliveryStatus)).Inc()
	l.log.Debug("history recorded",
		zap.String("notification_id", rec.ID),
		zap.String("event_id", rec.EventID),
		zap.String("channel", string(rec.Channel)),
		zap.String("status", string(rec.DeliveryStatus)),
	)
	return rec, nil
}

// terminal statuses accept no further receipts.
var terminal = map[history.Status]bool{
	history.StatusDelivered:  true,
	history.StatusSuppressed: true,
	history.StatusSkipped:    true,
}

// UpdateStatus applies a delivery receipt. Delivered without a timestamp is stamped with now.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, status history.Status, deliveredAt *time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if status == history.StatusDelivered && deliveredAt == nil {
		now := l.clock.Now().UTC()
		deliveredAt = &now
	}

	apply := func(ctx context.Context) error {
		cur, err := l.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if terminal[cur.DeliveryStatus] && cur.DeliveryStatus != status {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.DeliveryStatus, status)
		}
		return l.repo.UpdateStatus(ctx, id, status, deliveredAt)
	}

	if l.tx == nil {
		return apply(ctx)
	}
	return l.tx.WithTx(ctx, apply)
}

func (l *Ledger) GetByID(ctx context.Context, id string) (*history.Record, error) {
	return l.repo.GetByID(ctx, id)
}

func (l *Ledger) Query(ctx context.Context, f history.Filter) (*history.Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	return l.repo.Query(ctx, f)
}

func (l *Ledger) CountSent(ctx context.Context, userID string, since time.Time) (int, error) {
	return l.repo.CountSent(ctx, userID, since)
}

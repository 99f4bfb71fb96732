package historyapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Ledger is the part of the history ledger the API serves.
type Ledger interface {
	GetByID(ctx context.Context, id string) (*history.Record, error)
	Query(ctx context.Context, f history.Filter) (*history.Page, error)
	UpdateStatus(ctx context.Context, id string, status history.Status, deliveredAt *time.Time) error
}

type Controller struct {
	log    *zap.Logger
	ledger Ledger
}

func NewController(l Ledger, log *zap.Logger) *Controller {
	return &Controller{ledger: l, log: log.With(zap.String("component", "history-api"))}
}

type listRequest struct {
	UserID    string `query:"userId" validate:"omitempty,max=128"`
	EventType string `query:"eventType" validate:"omitempty,oneof=test_started test_completed test_failed critical_alert analysis_complete daily_summary weekly_summary"`
	Channel   string `query:"channel" validate:"omitempty,oneof=email sms chat webhook none"`
	Status    string `query:"status" validate:"omitempty,oneof=pending sent delivered failed suppressed skipped"`
	From      string `query:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To        string `query:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit     int    `query:"limit" validate:"gte=0,lte=500"`
	Cursor    string `query:"cursor"`
}

func (r listRequest) filter() (history.Filter, error) {
	f := history.Filter{
		UserID:    r.UserID,
		EventType: notification.EventType(r.EventType),
		Channel:   notification.Channel(r.Channel),
		Status:    history.Status(r.Status),
		Limit:     r.Limit,
		Cursor:    r.Cursor,
	}
	var err error
	if r.From != "" {
		if f.From, err = time.Parse(time.RFC3339, r.From); err != nil {
			return f, fmt.Errorf("%w: from: %v", ErrInvalidInput, err)
		}
	}
	if r.To != "" {
		if f.To, err = time.Parse(time.RFC3339, r.To); err != nil {
			return f, fmt.Errorf("%w: to: %v", ErrInvalidInput, err)
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}
	return f, nil
}

// List serves GET /v1/history.
func (h *Controller) List(c echo.Context) error {
	var req listRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	f, err := req.filter()
	if err != nil {
		return err
	}

	page, err := h.ledger.Query(c.Request().Context(), f)
	if err != nil {
		return err
	}
	items := page.Items
	if items == nil {
		items = []*history.Record{}
	}
	return JSONList(c, http.StatusOK, items, &PaginationMeta{
		NextCursor: page.NextCursor,
		HasNext:    page.NextCursor != "",
	})
}

type idRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

// Get serves GET /v1/history/:id.
func (h *Controller) Get(c echo.Context) error {
	var req idRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	rec, err := h.ledger.GetByID(c.Request().Context(), req.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, rec)
}

type statusRequest struct {
	ID          string     `param:"id" json:"-" validate:"required,uuid"`
	Status      string     `json:"status" validate:"required"`
	DeliveredAt *time.Time `json:"deliveredAt"`
}

// UpdateStatus serves PATCH /v1/history/:id/status, the delivery-receipt hook.
func (h *Controller) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if err := h.ledger.UpdateStatus(ctx, req.ID, history.Status(req.Status), req.DeliveredAt); err != nil {
		return err
	}
	h.log.Info("delivery receipt applied",
		zap.String("notification_id", req.ID),
		zap.String("status", req.Status),
	)

	rec, err := h.ledger.GetByID(ctx, req.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, rec)
}

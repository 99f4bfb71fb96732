package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/template"
	"github.com/NordCoder/Courier/internal/ledger"
	"github.com/NordCoder/Courier/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type State string

const (
	StateReceived          State = "RECEIVED"
	StatePolicyChecked     State = "POLICY_CHECKED"
	StateSuppressed        State = "SUPPRESSED"
	StateRouted            State = "ROUTED"
	StateRendered          State = "RENDERED"
	StateDeliveryAttempted State = "DELIVERY_ATTEMPTED"
	StateRecorded          State = "RECORDED"
)

var ErrNoTemplate = errors.New("no template for event and channel")

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_processed_total",
		Help: "Inbound events by final state.",
	}, []string{"state"})
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_deliveries_total",
		Help: "Per-channel deliveries, by channel, method and status.",
	}, []string{"channel", "method", "status"})
	channelsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_channels_skipped_budget_total",
		Help: "Channels not started because the message budget ran low.",
	})
)

type PolicyEvaluator interface {
	Evaluate(ctx context.Context, userID string, et notification.EventType) Decision
}

type ChannelSender interface {
	Send(ctx context.Context, ch notification.Channel, r Rendered, ev notification.Event) Outcome
}

type Relayer interface {
	IsEnabled() bool
	Send(ctx context.Context, ev notification.Event, data RelayData) RelayResult
}

type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) (*history.Record, error)
}

type TemplateGetter interface {
	Get(ctx context.Context, et notification.EventType, ch notification.Channel) (*template.Template, error)
}

// ChannelResult is what happened on one channel of an event.
type ChannelResult struct {
	Channel  notification.Channel
	State    State
	Method   history.Method
	Status   history.Status
	RecordID string
	Err      error
}

// Result summarises one processed event.
type Result struct {
	EventID  string
	State    State
	Decision Decision
	Channels []ChannelResult
	// Skipped lists channels left unstarted for lack of budget; they have no ledger row.
	Skipped []notification.Channel
}

type Processor struct {
	policy    PolicyEvaluator
	templates TemplateGetter
	renderer  *Renderer
	redactor  *Redactor
	relay     Relayer
	channels  ChannelSender
	ledger    Recorder
	log       *zap.Logger

	minChannelTime time.Duration
}

type ProcessorDeps struct {
	Policy    PolicyEvaluator
	Templates TemplateGetter
	Renderer  *Renderer
	Redactor  *Redactor
	Relay     Relayer
	Channels  ChannelSender
	Ledger    Recorder
	Log       *zap.Logger

	// MinChannelTime is the remaining budget a channel needs before it is started.
	MinChannelTime time.Duration
}

func NewProcessor(d ProcessorDeps) *Processor {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	if d.Renderer == nil {
		d.Renderer = NewRenderer(log)
	}
	if d.Redactor == nil {
		d.Redactor = NewRedactor()
	}
	return &Processor{
		policy:         d.Policy,
		templates:      d.Templates,
		renderer:       d.Renderer,
		redactor:       d.Redactor,
		relay:          d.Relay,
		channels:       d.Channels,
		ledger:         d.Ledger,
		log:            log.With(zap.String("component", "notifier.processor")),
		minChannelTime: d.MinChannelTime,
	}
}

// Process parses raw and runs it through the pipeline. Parse failures wrap
// notification.ErrMalformedEvent and write nothing.
func (p *Processor) Process(ctx context.Context, raw []byte) (*Result, error) {
	ev, err := notification.ParseEvent(raw)
	if err != nil {
		eventsProcessed.WithLabelValues("MALFORMED").Inc()
		return nil, err
	}
	return p.ProcessEvent(ctx, ev)
}

func (p *Processor) ProcessEvent(ctx context.Context, ev notification.Event) (*Result, error) {
	if err := notification.ValidateEvent(ev); err != nil {
		eventsProcessed.WithLabelValues("MALFORMED").Inc()
		return nil, fmt.Errorf("%w: %w", notification.ErrMalformedEvent, err)
	}

	ctx, span := otel.Tracer("notifier.processor").Start(ctx, "notifier.process",
		trace.WithAttributes(
			attribute.String("event_type", string(ev.EventType)),
			attribute.String("event_id", ev.EventID),
		))
	defer span.End()

	log := obs.WithTrace(ctx, p.log).With(
		zap.String("event_id", ev.EventID),
		zap.String("event_type", string(ev.EventType)),
		zap.String("user_id", ev.Payload.UserID),
	)

	res := &Result{EventID: ev.EventID, State: StateReceived}

	d := p.policy.Evaluate(ctx, ev.Payload.UserID, ev.EventType)
	res.Decision = d
	res.State = StatePolicyChecked

	if !d.Send {
		res.State = StateSuppressed
		p.recordSuppressed(ctx, log, ev, d.Reason)
		log.Info("notification suppressed", zap.String("reason", string(d.Reason)))
		eventsProcessed.WithLabelValues(string(StateSuppressed)).Inc()
		return res, nil
	}
	res.State = StateRouted

	rc := BuildContext(ev)
	results := make([]*ChannelResult, len(d.Channels))
	skipped := make([]bool, len(d.Channels))

	var wg conc.WaitGroup
	for i, ch := range d.Channels {
		if !p.hasBudget(ctx) {
			skipped[i] = true
			continue
		}
		wg.Go(func() {
			cr := p.deliver(ctx, log, ev, ch, rc)
			results[i] = &cr
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		log.Error("channel delivery panicked", zap.Any("panic", r.Value), zap.String("stack", string(r.Stack)))
	}

	for i, ch := range d.Channels {
		switch {
		case skipped[i]:
			res.Skipped = append(res.Skipped, ch)
			channelsSkipped.Inc()
			log.Warn("channel skipped: message budget exhausted", zap.String("channel", string(ch)))
		case results[i] == nil:
			cr := p.recordPanicked(ctx, log, ev, ch)
			res.Channels = append(res.Channels, cr)
		default:
			res.Channels = append(res.Channels, *results[i])
		}
	}

	res.State = StateRecorded
	eventsProcessed.WithLabelValues(string(StateRecorded)).Inc()
	log.Info("notification processed",
		zap.Int("channels", len(res.Channels)),
		zap.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

// hasBudget reports whether enough of the ctx deadline remains to start a channel.
func (p *Processor) hasBudget(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	dl, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(dl) >= p.minChannelTime
}

func (p *Processor) deliver(ctx context.Context, log *zap.Logger, ev notification.Event, ch notification.Channel, rc RenderContext) ChannelResult {
	ctx, span := otel.Tracer("notifier.processor").Start(ctx, "notifier.channel",
		trace.WithAttributes(attribute.String("channel", string(ch))))
	defer span.End()

	log = log.With(zap.String("channel", string(ch)))
	cr := ChannelResult{Channel: ch, State: StateRouted}
	to := RecipientFor(ch, ev.Payload.Recipient)

	tpl, err := p.templates.Get(ctx, ev.EventType, ch)
	switch {
	case errors.Is(err, template.ErrNotFound):
		cr.Err = fmt.Errorf("%w: %s/%s", ErrNoTemplate, ev.EventType, ch)
		cr.Method, cr.Status = history.MethodNone, history.StatusSkipped
		log.Warn("no template; channel skipped")
		return p.record(ctx, log, ev, cr, to, 0, nil)
	case err != nil:
		cr.Err = fmt.Errorf("load template: %w", err)
		cr.Method, cr.Status = history.MethodNone, history.StatusFailed
		log.Warn("template lookup failed", zap.Error(err))
		return p.record(ctx, log, ev, cr, to, 0, nil)
	case !FormatAllowed(ch, tpl.Format):
		cr.Err = fmt.Errorf("%w: format %q not allowed for %s", ErrInvalidTemplate, tpl.Format, ch)
		cr.Method, cr.Status = history.MethodNone, history.StatusFailed
		return p.record(ctx, log, ev, cr, to, 0, nil)
	}

	rendered := p.redactor.RedactRendered(p.renderer.RenderTemplate(tpl, rc))
	cr.State = StateRendered
	meta := map[string]string{
		"template_id": tpl.ID,
		"format":      string(tpl.Format),
	}
	if rendered.Subject != "" {
		meta["subject"] = rendered.Subject
	}

	if p.relay != nil && p.relay.IsEnabled() {
		rr := p.relay.Send(ctx, ev, RelayData{
			Channel:   ch,
			Recipient: to,
			Subject:   rendered.Subject,
			Body:      rendered.Body,
			Format:    rendered.Format,
			Payload:   p.redactor.RedactPayload(ev.Payload),
		})
		meta["relay_duration_ms"] = strconv.FormatInt(rr.Duration.Milliseconds(), 10)
		if rr.StatusCode != 0 {
			meta["relay_status"] = strconv.Itoa(rr.StatusCode)
		}
		if rr.Success {
			cr.State = StateDeliveryAttempted
			cr.Method, cr.Status = history.MethodRelay, history.StatusSent
			return p.record(ctx, log, ev, cr, to, 0, meta)
		}
		if rr.Err != nil {
			meta["relay_error"] = rr.Err.Error()
		}
		log.Warn("relay failed; falling back to channel", zap.Error(rr.Err))
	}

	out := p.channels.Send(ctx, ch, rendered, ev)
	cr.State = StateDeliveryAttempted
	cr.Method, cr.Status, cr.Err = history.MethodChannel, out.Status, out.Err
	if out.Recipient != "" {
		to = out.Recipient
	}
	retries := out.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return p.record(ctx, log, ev, cr, to, retries, meta)
}

func (p *Processor) record(ctx context.Context, log *zap.Logger, ev notification.Event, cr ChannelResult, to string, retries int, meta map[string]string) ChannelResult {
	e := ledger.Entry{
		UserID:     ev.Payload.UserID,
		EventType:  ev.EventType,
		EventID:    ev.EventID,
		Channel:    cr.Channel,
		Method:     cr.Method,
		Status:     cr.Status,
		Recipient:  to,
		RetryCount: retries,
		Metadata:   p.redactor.RedactMap(meta),
	}
	if cr.Err != nil {
		e.ErrorMessage = p.redactor.Redact(cr.Err.Error())
	}
	deliveries.WithLabelValues(string(cr.Channel), string(cr.Method), string(cr.Status)).Inc()

	rec, err := p.ledger.Record(ctx, e)
	if err != nil {
		log.Error("history record failed", zap.String("status", string(cr.Status)), zap.Error(err))
		return cr
	}
	cr.RecordID = rec.ID
	cr.State = StateRecorded
	return cr
}

func (p *Processor) recordSuppressed(ctx context.Context, log *zap.Logger, ev notification.Event, reason Reason) {
	if _, err := p.ledger.Record(ctx, ledger.Entry{
		UserID:       ev.Payload.UserID,
		EventType:    ev.EventType,
		EventID:      ev.EventID,
		Channel:      notification.ChannelNone,
		Method:       history.MethodNone,
		Status:       history.StatusSuppressed,
		ErrorMessage: string(reason),
	}); err != nil {
		log.Error("history record failed", zap.String("status", string(history.StatusSuppressed)), zap.Error(err))
	}
	deliveries.WithLabelValues(string(notification.ChannelNone), string(history.MethodNone), string(history.StatusSuppressed)).Inc()
}

func (p *Processor) recordPanicked(ctx context.Context, log *zap.Logger, ev notification.Event, ch notification.Channel) ChannelResult {
	cr := ChannelResult{
		Channel: ch,
		State:   StateDeliveryAttempted,
		Method:  history.MethodNone,
		Status:  history.StatusFailed,
		Err:     errors.New("channel delivery panicked"),
	}
	return p.record(ctx, log, ev, cr, RecipientFor(ch, ev.Payload.Recipient), 0, nil)
}

package notifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/preference"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDisabled       Reason = "disabled"
	ReasonQuietHours     Reason = "quiet_hours"
	ReasonFrequencyLimit Reason = "frequency_limit"
	ReasonNoChannels     Reason = "no_channels"
)

var decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifier_decisions_total",
	Help: "Preference decisions, by event type and outcome.",
}, []string{"event_type", "outcome"})

// Decision is the evaluator verdict for one (user, event type).
type Decision struct {
	Send     bool
	Reason   Reason
	Channels []notification.Channel
	Critical bool
}

type Evaluator struct {
	prefs preference.Repo
	gate  FrequencyGate
	clock notification.Clock
	log   *zap.Logger
}

func NewEvaluator(prefs preference.Repo, gate FrequencyGate, clock notification.Clock, log *zap.Logger) *Evaluator {
	if gate == nil {
		gate = NoLimit{}
	}
	if clock == nil {
		clock = notification.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{prefs: prefs, gate: gate, clock: clock, log: log.With(zap.String("component", "notifier.preferences"))}
}

// load never fails: any store error yields the built-in defaults.
func (e *Evaluator) load(ctx context.Context, userID string) *preference.Preferences {
	p, err := e.prefs.Get(ctx, userID)
	if err != nil || p == nil {
		if err != nil && !errors.Is(err, preference.ErrNotFound) {
			e.log.Warn("load preferences failed; using defaults", zap.String("user_id", userID), zap.Error(err))
		}
		return preference.Defaults(userID)
	}
	return p
}

func (e *Evaluator) Evaluate(ctx context.Context, userID string, et notification.EventType) Decision {
	p := e.load(ctx, userID)
	d := e.decide(ctx, p, et)
	outcome := "send"
	if !d.Send {
		outcome = string(d.Reason)
	}
	decisions.WithLabelValues(string(et), outcome).Inc()
	return d
}

func (e *Evaluator) decide(ctx context.Context, p *preference.Preferences, et notification.EventType) Decision {
	ep := p.Event(et)
	chans := cleanChannels(ep.Channels)

	if et.IsCritical() {
		if len(chans) == 0 {
			chans = cleanChannels(preference.Defaults(p.UserID).Events[et].Channels)
		}
		return Decision{Send: true, Channels: chans, Critical: true}
	}
	if !ep.Enabled {
		return Decision{Reason: ReasonDisabled}
	}
	if e.inQuietHours(p.QuietHours) {
		return Decision{Reason: ReasonQuietHours}
	}
	if e.overLimit(ctx, p.UserID, p.FrequencyLimit) {
		return Decision{Reason: ReasonFrequencyLimit}
	}
	if len(chans) == 0 {
		return Decision{Reason: ReasonNoChannels}
	}
	return Decision{Send: true, Channels: chans}
}

func (e *Evaluator) ShouldSend(ctx context.Context, userID string, et notification.EventType) bool {
	return e.Evaluate(ctx, userID, et).Send
}

// DeliveryChannels lists the channels for an enabled event; empty when the user opted out.
func (e *Evaluator) DeliveryChannels(ctx context.Context, userID string, et notification.EventType) []notification.Channel {
	p := e.load(ctx, userID)
	ep := p.Event(et)
	if !ep.Enabled && !et.IsCritical() {
		return nil
	}
	chans := cleanChannels(ep.Channels)
	if len(chans) == 0 && et.IsCritical() {
		chans = cleanChannels(preference.Defaults(userID).Events[et].Channels)
	}
	return chans
}

func (e *Evaluator) IsInQuietHours(ctx context.Context, userID string) bool {
	return e.inQuietHours(e.load(ctx, userID).QuietHours)
}

func (e *Evaluator) IsOverFrequencyLimit(ctx context.Context, userID string) bool {
	return e.overLimit(ctx, userID, e.load(ctx, userID).FrequencyLimit)
}

func (e *Evaluator) inQuietHours(q *preference.QuietHours) bool {
	if q == nil || !q.Enabled {
		return false
	}
	in, err := InQuietHours(*q, e.clock.Now(), e.log)
	if err != nil {
		e.log.Warn("bad quiet hours window; ignoring", zap.String("start", q.Start), zap.String("end", q.End), zap.Error(err))
		return false
	}
	return in
}

func (e *Evaluator) overLimit(ctx context.Context, userID string, fl *preference.FrequencyLimit) bool {
	if fl == nil || !fl.Enabled || fl.MaxNotifications <= 0 || fl.Window <= 0 {
		return false
	}
	over, err := e.gate.Exceeded(ctx, userID, *fl)
	if err != nil {
		e.log.Warn("frequency gate failed; allowing", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return over
}

// InQuietHours checks now against q in q.Timezone at minute resolution. Both bounds are
// inclusive; a window whose start is after its end wraps past midnight.
func InQuietHours(q preference.QuietHours, now time.Time, log *zap.Logger) (bool, error) {
	start, err := parseClock(q.Start)
	if err != nil {
		return false, fmt.Errorf("start: %w", err)
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false, fmt.Errorf("end: %w", err)
	}

	loc := time.UTC
	if q.Timezone != "" {
		l, err := time.LoadLocation(q.Timezone)
		if err != nil {
			if log != nil {
				log.Warn("unknown timezone; using UTC", zap.String("timezone", q.Timezone))
			}
		} else {
			loc = l
		}
	}
	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	if start > end {
		return cur >= start || cur <= end, nil
	}
	return cur >= start && cur <= end, nil
}

var errBadClock = errors.New("want HH:MM")

func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, errBadClock
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, errBadClock
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, errBadClock
	}
	return hh*60 + mm, nil
}

// cleanChannels drops unknown and repeated channels, keeping order.
func cleanChannels(in []notification.Channel) []notification.Channel {
	out := make([]notification.Channel, 0, len(in))
	seen := make(map[notification.Channel]bool, len(in))
	for _, c := range in {
		if !c.Valid() || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Backoff interface {
	Next(attempt int) time.Duration
}

// Config bounds an Execute call: MaxRetries+1 invocations in total.
type Config struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

// Exponential is the deterministic backoff: min(initial * multiplier^attempt, max).
type Exponential struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func (b Exponential) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && (d > float64(b.Max) || math.IsInf(d, 1)) {
		return b.Max
	}
	return time.Duration(d)
}

func (c Config) Backoff() Backoff {
	return Exponential{Initial: c.InitialDelay, Max: c.MaxDelay, Multiplier: c.Multiplier}
}

// Delay is the wait before the attempt following zero-based attempt n.
func Delay(n int, c Config) time.Duration { return c.Backoff().Next(n) }

type Policy struct {
	Name      string
	Config    Config
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
}

type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

func (r Result[T]) Success() bool { return r.Err == nil }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

var (
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Total retry attempts (including final).",
	}, []string{"name"})
	retryExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_exhausted_total",
		Help: "Operations that exhausted all retries.",
	}, []string{"name"})
	retryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_duration_seconds",
		Help:    "Total time spent inside retry.Execute (success or fail).",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

// Execute runs fn until it succeeds, returns a non-retryable error, or the policy is
// exhausted. It never sleeps after the final attempt.
func Execute[T any](ctx context.Context, fn func(ctx context.Context) (T, error), p Policy) Result[T] {
	start := time.Now()
	name := p.Name
	if name == "" {
		name = "default"
	}
	defer func() { retryLatency.WithLabelValues(name).Observe(time.Since(start).Seconds()) }()

	attempts := p.Config.MaxRetries + 1
	if attempts <= 0 {
		attempts = 1
	}

	isRetryable := p.Retryable
	if isRetryable == nil {
		isRetryable = func(err error) bool { return err != nil && !IsPermanent(err) }
	}

	backoff := p.Config.Backoff()
	span := trace.SpanFromContext(ctx)

	var res Result[T]
	for i := 0; i < attempts; i++ {
		v, err := fn(ctx)
		res.Attempts = i + 1
		retryAttempts.WithLabelValues(name).Inc()
		if err == nil {
			res.Value = v
			res.Err = nil
			return res
		}
		res.Err = err
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		if span.IsRecording() {
			span.AddEvent("retry.attempt", trace.WithAttributes(
				attribute.String("retry.name", name),
				attribute.Int("retry.attempt", i+1),
			))
		}
		if !isRetryable(err) || i == attempts-1 {
			break
		}
		t := time.NewTimer(backoff.Next(i))
		select {
		case <-ctx.Done():
			t.Stop()
			res.Err = ctx.Err()
			return res
		case <-t.C:
		}
	}
	retryExhausted.WithLabelValues(name).Inc()
	if p.OnExhaust != nil {
		p.OnExhaust(res.Err)
	}
	return res
}

// Do is Execute for operations without a result value.
func Do(ctx context.Context, fn func(ctx context.Context) error, p Policy) (int, error) {
	res := Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, p)
	return res.Attempts, res.Err
}

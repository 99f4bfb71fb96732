package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	config "github.com/NordCoder/Courier/internal/config/notifier"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	defaultRelayTimeout = 10 * time.Second
	maxRelayBody        = 1 << 10
)

var (
	ErrRelayDisabled = errors.New("relay disabled")
	ErrRelayConfig   = errors.New("invalid relay configuration")
	ErrRelayTimeout  = errors.New("relay timeout")
	ErrRelayStatus   = errors.New("relay returned non-2xx status")
)

var relayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "notifier_relay_duration_seconds",
	Help:    "Outbound relay request latency, by result.",
	Buckets: prometheus.DefBuckets,
}, []string{"result"})

// TimeoutError reports a relay call cut off by the client timeout. It matches ErrRelayTimeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %dms", e.After.Milliseconds())
}

func (e *TimeoutError) Is(target error) bool { return target == ErrRelayTimeout }

type RelayResult struct {
	Success      bool
	StatusCode   int
	ResponseBody string
	Err          error
	Duration     time.Duration
}

type relayMetadata struct {
	Source  string `json:"source"`
	Version string `json:"version"`
}

type relayBody struct {
	EventType notification.EventType `json:"eventType"`
	EventID   string                 `json:"eventId"`
	Timestamp time.Time              `json:"timestamp"`
	Data      any                    `json:"data"`
	Metadata  relayMetadata          `json:"metadata"`
}

// RelayData is what a relay call forwards for one channel.
type RelayData struct {
	Channel   notification.Channel `json:"channel"`
	Recipient string               `json:"recipient,omitempty"`
	Subject   string               `json:"subject,omitempty"`
	Body      string               `json:"body"`
	Format    notification.Format  `json:"format"`
	Payload   notification.Payload `json:"payload"`
}

type RelayClient struct {
	cfg     config.Relay
	timeout time.Duration
	hc      *http.Client
	log     *zap.Logger
}

func NewRelayClient(cfg config.Relay, base http.RoundTripper, log *zap.Logger) *RelayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRelayTimeout
	}
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RelayClient{
		cfg:     cfg,
		timeout: timeout,
		hc:      &http.Client{Transport: obs.HTTPTransport(base)},
		log:     log.With(zap.String("component", "notifier.relay")),
	}
}

// IsEnabled requires both the flag and a URL.
func (c *RelayClient) IsEnabled() bool {
	return c != nil && c.cfg.Enabled && c.cfg.URL != ""
}

func (c *RelayClient) ValidateConfiguration() error {
	if !c.cfg.Enabled {
		return nil
	}
	if c.cfg.URL == "" {
		return fmt.Errorf("%w: url is required when enabled", ErrRelayConfig)
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not supported", ErrRelayConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrRelayConfig)
	}
	return nil
}

func (c *RelayClient) Send(ctx context.Context, ev notification.Event, data RelayData) RelayResult {
	start := time.Now()
	res := c.send(ctx, ev, data)
	res.Duration = time.Since(start)

	result := "ok"
	switch {
	case errors.Is(res.Err, ErrRelayTimeout):
		result = "timeout"
	case res.Err != nil:
		result = "error"
	}
	relayLatency.WithLabelValues(result).Observe(res.Duration.Seconds())
	return res
}

func (c *RelayClient) send(ctx context.Context, ev notification.Event, data RelayData) RelayResult {
	if !c.IsEnabled() {
		return RelayResult{Err: ErrRelayDisabled}
	}
	if err := c.ValidateConfiguration(); err != nil {
		return RelayResult{Err: err}
	}

	body, err := json.Marshal(relayBody{
		EventType: ev.EventType,
		EventID:   ev.EventID,
		Timestamp: ev.Timestamp,
		Data:      data,
		Metadata:  relayMetadata{Source: c.cfg.Source, Version: c.cfg.Version},
	})
	if err != nil {
		return RelayResult{Err: fmt.Errorf("encode relay body: %w", err)}
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return RelayResult{Err: fmt.Errorf("%w: %v", ErrRelayConfig, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.cfg.APIKey != "":
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	case c.cfg.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return RelayResult{Err: &TimeoutError{After: c.timeout}}
		}
		return RelayResult{Err: fmt.Errorf("relay request: %w", err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxRelayBody+1))
	text := string(raw)
	if len(raw) > maxRelayBody {
		text = string(raw[:maxRelayBody]) + "...(truncated)"
	}

	res := RelayResult{StatusCode: resp.StatusCode, ResponseBody: text}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("%w: %d: %s", ErrRelayStatus, resp.StatusCode, text)
		c.log.Warn("relay rejected", zap.Int("status", resp.StatusCode), zap.String("event_id", ev.EventID))
		return res
	}
	res.Success = true
	return res
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

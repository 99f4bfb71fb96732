package notifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/domain/template"
	"go.uber.org/zap"
)

var ErrInvalidTemplate = errors.New("invalid template")

// RenderContext maps placeholder names to a string, a []string or any JSON-encodable value.
type RenderContext map[string]any

// Rendered is a template after substitution and redaction.
type Rendered struct {
	Subject string
	Body    string
	Format  notification.Format
}

var formatsByChannel = map[notification.Channel][]notification.Format{
	notification.ChannelEmail:   {notification.FormatText, notification.FormatHTML},
	notification.ChannelSMS:     {notification.FormatText},
	notification.ChannelChat:    {notification.FormatBlocks},
	notification.ChannelWebhook: {notification.FormatJSON},
}

func FormatAllowed(ch notification.Channel, f notification.Format) bool {
	for _, ok := range formatsByChannel[ch] {
		if ok == f {
			return true
		}
	}
	return false
}

var identRe = regexp.MustCompile(`^\w+$`)

// ValidateTemplate rejects unbalanced braces, non-word placeholders and formats the channel cannot carry.
func ValidateTemplate(t *template.Template) error {
	if t == nil {
		return fmt.Errorf("%w: nil", ErrInvalidTemplate)
	}
	if !t.EventType.Known() {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidTemplate, t.EventType)
	}
	if !t.Channel.Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidTemplate, t.Channel)
	}
	if !FormatAllowed(t.Channel, t.Format) {
		return fmt.Errorf("%w: format %q not allowed for %s", ErrInvalidTemplate, t.Format, t.Channel)
	}
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidTemplate)
	}
	for _, part := range []struct{ name, text string }{{"subject", t.Subject}, {"body", t.Body}} {
		if err := checkPlaceholders(part.text); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, part.name, err)
		}
	}
	for _, v := range t.Variables {
		if !identRe.MatchString(v) {
			return fmt.Errorf("%w: variable %q", ErrInvalidTemplate, v)
		}
	}
	return nil
}

func checkPlaceholders(s string) error {
	open, closing := strings.Count(s, "{{"), strings.Count(s, "}}")
	if open != closing {
		return fmt.Errorf("unbalanced braces: %d '{{' vs %d '}}'", open, closing)
	}
	rest := s
	for {
		i := strings.Index(rest, "{{")
		if i < 0 {
			return nil
		}
		j := strings.Index(rest[i+2:], "}}")
		if j < 0 {
			return errors.New("unterminated placeholder")
		}
		name := rest[i+2 : i+2+j]
		if !identRe.MatchString(name) {
			return fmt.Errorf("bad placeholder %q", name)
		}
		rest = rest[i+2+j+2:]
	}
}

type Renderer struct {
	log *zap.Logger
}

func NewRenderer(log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{log: log.With(zap.String("component", "notifier.renderer"))}
}

// Render replaces every {{name}} in one left-to-right pass. Substituted text is never rescanned.
func (r *Renderer) Render(body string, rc RenderContext) string {
	return r.render(body, rc, nil)
}

// RenderTemplate renders subject and body. JSON-carrying formats get string-escaped values.
func (r *Renderer) RenderTemplate(t *template.Template, rc RenderContext) Rendered {
	var esc func(string) string
	if t.Format == notification.FormatJSON || t.Format == notification.FormatBlocks {
		esc = jsonEscape
	}
	return Rendered{
		Subject: r.render(t.Subject, rc, nil),
		Body:    r.render(t.Body, rc, esc),
		Format:  t.Format,
	}
}

func (r *Renderer) render(s string, rc RenderContext, esc func(string) string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if i+1 < len(s) && s[i] == '{' && s[i+1] == '{' {
			if name, n, ok := placeholderAt(s[i+2:]); ok {
				v, found := rc[name]
				if !found {
					r.log.Warn("missing template variable", zap.String("name", name))
				}
				out := stringify(v)
				if esc != nil {
					out = esc(out)
				}
				b.WriteString(out)
				i += 2 + n
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// placeholderAt matches `name}}` at the start of s and returns the consumed length.
func placeholderAt(s string) (string, int, bool) {
	j := 0
	for j < len(s) && isIdentByte(s[j]) {
		j++
	}
	if j == 0 || j+1 >= len(s) || s[j] != '}' || s[j+1] != '}' {
		return "", 0, false
	}
	return s[:j], j + 2, true
}

func isIdentByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, ", ")
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ", ")
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}

// BuildContext flattens an event into placeholder values. Summary keys are also exposed at
// top level unless they collide with a built-in name.
func BuildContext(ev notification.Event) RenderContext {
	p := ev.Payload
	rc := RenderContext{
		"eventType":    string(ev.EventType),
		"eventId":      ev.EventID,
		"timestamp":    ev.Timestamp,
		"userId":       p.UserID,
		"projectName":  p.ProjectName,
		"testId":       p.TestID,
		"testName":     p.TestName,
		"status":       p.Status,
		"severity":     p.Severity,
		"durationMs":   p.DurationMs,
		"duration":     formatDuration(p.DurationMs),
		"failedSteps":  p.FailedSteps,
		"failedCount":  len(p.FailedSteps),
		"errorMessage": p.ErrorMessage,
		"reportUrl":    p.ReportURL,
	}
	if p.Summary != nil {
		rc["summary"] = p.Summary
		keys := make([]string, 0, len(p.Summary))
		for k := range p.Summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, taken := rc[k]; !taken && identRe.MatchString(k) {
				rc[k] = p.Summary[k]
			}
		}
	}
	if p.Details != nil {
		rc["details"] = p.Details
	}
	return rc
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return (time.Duration(ms) * time.Millisecond).String()
}

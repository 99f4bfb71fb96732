package notifier

import (
	"regexp"

	"github.com/NordCoder/Courier/internal/domain/notification"
)

const redacted = "[REDACTED]"

type redactRule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor masks credentials and personal numbers in text leaving the service.
type Redactor struct {
	rules []redactRule
}

func NewRedactor() *Redactor {
	return &Redactor{rules: []redactRule{
		{regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|auth[_-]?token|token|secret|password|passwd|pwd)("?\s*[:=]\s*)("?)[^\s"',;&]+`), "${1}${2}${3}" + redacted},
		{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer " + redacted},
		{regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`), redacted},
		{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), redacted},
		{regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{3,4}\b`), redacted},
	}}
}

func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	for _, rule := range r.rules {
		s = rule.re.ReplaceAllString(s, rule.repl)
	}
	return s
}

// RedactMap returns a redacted copy of m.
func (r *Redactor) RedactMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = r.Redact(v)
	}
	return out
}

func (r *Redactor) RedactRendered(in Rendered) Rendered {
	in.Subject = r.Redact(in.Subject)
	in.Body = r.Redact(in.Body)
	return in
}

// RedactPayload returns a copy of p with every free-text field masked, including the string
// leaves of Summary and Details. Identifiers and recipient addresses are kept.
func (r *Redactor) RedactPayload(p notification.Payload) notification.Payload {
	p.ProjectName = r.Redact(p.ProjectName)
	p.TestName = r.Redact(p.TestName)
	p.Status = r.Redact(p.Status)
	p.ErrorMessage = r.Redact(p.ErrorMessage)
	if p.FailedSteps != nil {
		steps := make([]string, len(p.FailedSteps))
		for i, s := range p.FailedSteps {
			steps[i] = r.Redact(s)
		}
		p.FailedSteps = steps
	}
	p.Summary = r.redactTree(p.Summary)
	p.Details = r.redactTree(p.Details)
	return p
}

func (r *Redactor) redactTree(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch t := v.(type) {
	case string:
		return r.Redact(t)
	case map[string]any:
		return r.redactTree(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = r.redactValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = r.Redact(e)
		}
		return out
	default:
		return v
	}
}

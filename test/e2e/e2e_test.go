//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

// The stack under test runs the notifier with channels.email_transport=smtp against mailhog.
type cfg struct {
	Bootstrap   string
	InTopic     string
	HistoryBase string
	MailhogBase string
	WaitEmail   time.Duration
}

func loadCfg() cfg {
	return cfg{
		Bootstrap:   getenv("E2E_BOOTSTRAP", "localhost:19092"),
		InTopic:     getenv("E2E_IN_TOPIC", "courier.events"),
		HistoryBase: getenv("E2E_HISTORY_BASE", "http://localhost:8085"),
		MailhogBase: getenv("E2E_MAILHOG_BASE", "http://localhost:8025"),
		WaitEmail:   mustParseDur(getenv("E2E_WAIT_EMAIL", "30s")),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustParseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

type historyList struct {
	Data []struct {
		Channel      string `json:"channel"`
		Status       string `json:"deliveryStatus"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"data"`
}

// Mailhog API v2 response, only the fields we read.
type mailhogMessages struct {
	Total    int          `json:"total"`
	Messages []mailhogMsg `json:"items"`
}
type mailhogMsg struct {
	To      []mailhogPerson `json:"To"`
	Content struct {
		Headers map[string][]string `json:"Headers"`
		Body    string              `json:"Body"`
	} `json:"Content"`
}
type mailhogPerson struct {
	Mailbox string `json:"Mailbox"`
	Domain  string `json:"Domain"`
}

func (p mailhogPerson) Email() string {
	if p.Domain == "" {
		return p.Mailbox
	}
	return p.Mailbox + "@" + p.Domain
}

func publish(t *testing.T, c cfg, key string, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	w := &kafka.Writer{Addr: kafka.TCP(c.Bootstrap), Topic: c.InTopic, RequiredAcks: kafka.RequireOne}
	defer w.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b}))
}

func getJSON(t *testing.T, url string, into any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	all, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(all, into))
}

func Test_CriticalAlert_ReachesMailboxAndLedger(t *testing.T) {
	c := loadCfg()

	for {
		t.Log("waiting for history-api")
		resp, err := http.Get(c.HistoryBase + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				break
			}
		}
		time.Sleep(1 * time.Second)
	}

	stamp := time.Now().UnixNano()
	email := fmt.Sprintf("e2e_%d@courier.dev", stamp)
	userID := fmt.Sprintf("e2e-user-%d", stamp)

	publish(t, c, userID, map[string]any{
		"eventType": "critical_alert",
		"eventId":   fmt.Sprintf("e2e-ev-%d", stamp),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload": map[string]any{
			"userId":       userID,
			"recipient":    map[string]any{"email": email},
			"projectName":  "e2e",
			"errorMessage": "database unreachable",
			"summary":      map[string]any{"failed": 12},
		},
	})

	deadline := time.Now().Add(c.WaitEmail)
	got := false
	for time.Now().Before(deadline) && !got {
		for _, m := range fetchMailhog(t, c, email) {
			if strings.Contains(headerFirst(m.Content.Headers, "Subject"), "CRITICAL") {
				got = true
				break
			}
		}
		if !got {
			time.Sleep(1 * time.Second)
		}
	}
	require.True(t, got, "email didn't arrive in time")

	// email was sent; sms has no phone number and is recorded as failed
	var hl historyList
	getJSON(t, c.HistoryBase+"/v1/history?userId="+userID, &hl)
	byChannel := map[string]string{}
	for _, r := range hl.Data {
		byChannel[r.Channel] = r.Status
	}
	require.Equal(t, "sent", byChannel["email"])
	require.Equal(t, "failed", byChannel["sms"])
}

func fetchMailhog(t *testing.T, c cfg, toEmail string) []mailhogMsg {
	t.Helper()
	var out mailhogMessages
	getJSON(t, c.MailhogBase+"/api/v2/messages", &out)
	var res []mailhogMsg
	for _, m := range out.Messages {
		for _, rcpt := range m.To {
			if strings.EqualFold(rcpt.Email(), toEmail) {
				res = append(res, m)
				break
			}
		}
	}
	return res
}

func headerFirst(h map[string][]string, key string) string {
	for k, v := range h {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

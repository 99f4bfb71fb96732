package notifier

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	config "github.com/NordCoder/Courier/internal/config/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeSMTP accepts one session and returns the DATA section.
func fakeSMTP(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		write := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		write("220 localhost ESMTP")
		var data strings.Builder
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				write("250 localhost")
			case strings.HasPrefix(cmd, "MAIL FROM"), strings.HasPrefix(cmd, "RCPT TO"):
				write("250 OK")
			case cmd == "DATA":
				write("354 go ahead")
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					data.WriteString(l)
				}
				write("250 queued")
				out <- data.String()
			case cmd == "QUIT":
				write("221 bye")
				return
			default:
				write("502 not implemented")
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestMailerSend(t *testing.T) {
	addr, got := fakeSMTP(t)
	m := NewMailer(config.SMTP{Addr: addr, From: "noreply@courier.dev", SubjPrefix: "[Courier]", Timeout: 2 * time.Second}).
		WithLogger(zaptest.NewLogger(t))

	require.NoError(t, m.Send(context.Background(), "ann@example.com", "checkout failed", "<p>details</p>"))

	select {
	case msg := <-got:
		assert.Contains(t, msg, "To: ann@example.com\r\n")
		assert.Contains(t, msg, "Subject: [Courier] checkout failed\r\n")
		assert.Contains(t, msg, "Content-Type: text/html; charset=utf-8\r\n")
		assert.Contains(t, msg, "<p>details</p>")
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestMailerSend_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m := NewMailer(config.SMTP{Addr: addr, Timeout: 500 * time.Millisecond})
	assert.Error(t, m.Send(context.Background(), "a@b.c", "s", "b"))
}

func TestBuildMessage_PlainText(t *testing.T) {
	msg := string(buildMessage("f@x", "t@x", "s", "hello"))
	assert.Contains(t, msg, "Content-Type: text/plain; charset=utf-8\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\nhello\r\n"))
	assert.Equal(t, "mail.example.com", host("mail.example.com:587"))
	assert.Equal(t, "mail.example.com", host("mail.example.com"))
}

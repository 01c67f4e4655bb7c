package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/driftwatch/driftwatch/internal/types"
)

// Channel delivers one alert to one destination. Implementations must
// respect ctx cancellation; the system bounds every delivery with a
// timeout and records failures without affecting sibling channels.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, alert *types.Alert) error
}

// LogChannel writes alerts to the process log
type LogChannel struct {
	out io.Writer
}

// NewLogChannel creates the log channel. A nil writer logs to stdout.
func NewLogChannel(out io.Writer) *LogChannel {
	if out == nil {
		out = os.Stdout
	}
	return &LogChannel{out: out}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(_ context.Context, alert *types.Alert) error {
	_, err := fmt.Fprintf(c.out, "AlertSystem: [%s] %s: %s (occurrence %d)\n",
		strings.ToUpper(string(alert.Severity)), alert.Type, alert.Title, alert.OccurrenceCount)
	return err
}

// FileChannel appends alerts as JSON lines to a file. Appends are
// serialized; one bad alert never corrupts an earlier line.
type FileChannel struct {
	path string
	mu   sync.Mutex
}

// NewFileChannel creates the JSONL file channel
func NewFileChannel(path string) *FileChannel {
	return &FileChannel{path: path}
}

func (c *FileChannel) Name() string { return "file" }

func (c *FileChannel) Deliver(_ context.Context, alert *types.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open alert file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// ConsoleChannel prints alerts for a human operator, color-coded by
// severity
type ConsoleChannel struct {
	out io.Writer
}

// NewConsoleChannel creates the console channel. A nil writer prints to
// stderr.
func NewConsoleChannel(out io.Writer) *ConsoleChannel {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleChannel{out: out}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Deliver(_ context.Context, alert *types.Alert) error {
	label := severityColor(alert.Severity).Sprintf("[%s]", strings.ToUpper(string(alert.Severity)))
	_, err := fmt.Fprintf(c.out, "%s %s\n    %s\n", label, alert.Title, alert.Message)
	return err
}

func severityColor(sev types.AlertSeverity) *color.Color {
	switch sev {
	case types.AlertCritical:
		return color.New(color.FgRed, color.Bold)
	case types.AlertError:
		return color.New(color.FgRed)
	case types.AlertWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

// WebhookChannel POSTs alerts as JSON to an HTTP endpoint
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel creates the webhook channel. The client's own
// timeout is left at zero; the system's channel timeout governs.
func NewWebhookChannel(url string, headers map[string]string) *WebhookChannel {
	return &WebhookChannel{url: url, headers: headers, client: &http.Client{}}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Deliver(ctx context.Context, alert *types.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// EmailChannel sends alerts over SMTP
type EmailChannel struct {
	host     string
	port     int
	from     string
	to       []string
	username string
	password string
	startTLS bool

	// send is swappable for tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates the SMTP channel. With startTLS the connection
// is upgraded explicitly before auth; otherwise smtp.SendMail's implicit
// negotiation applies.
func NewEmailChannel(host string, port int, from string, to []string, username, password string, startTLS bool) *EmailChannel {
	c := &EmailChannel{
		host:     host,
		port:     port,
		from:     from,
		to:       to,
		username: username,
		password: password,
		startTLS: startTLS,
	}
	if startTLS {
		c.send = c.sendWithStartTLS
	} else {
		c.send = smtp.SendMail
	}
	return c
}

// sendWithStartTLS upgrades the connection before authenticating, and
// fails instead of falling back to plaintext when the server does not
// offer STARTTLS
func (c *EmailChannel) sendWithStartTLS(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: c.host}); err != nil {
		return fmt.Errorf("starttls failed: %w", err)
	}
	if a != nil {
		if err := client.Auth(a); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(_ context.Context, alert *types.Alert) error {
	var auth smtp.Auth
	if c.username != "" {
		auth = smtp.PlainAuth("", c.username, c.password, c.host)
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.to, ", "))
	fmt.Fprintf(&msg, "Subject: [driftwatch %s] %s\r\n", strings.ToUpper(string(alert.Severity)), alert.Title)
	msg.WriteString("\r\n")
	msg.WriteString(alert.Message)
	msg.WriteString("\r\n")
	for k, v := range alert.Context {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, v)
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if err := c.send(addr, auth, c.from, c.to, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

package alerts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/types"
)

func sampleAlert() *types.Alert {
	return &types.Alert{
		ID:              "a-1",
		Type:            types.AlertTypeDrift,
		Severity:        types.AlertError,
		Title:           "drift detected in billing.go",
		Message:         "- [high] 'Charge' is specified but not implemented",
		Context:         map[string]string{"file": "billing.go"},
		Fingerprint:     "abc123",
		OccurrenceCount: 3,
	}
}

func TestLogChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewLogChannel(&buf)
	require.NoError(t, ch.Deliver(context.Background(), sampleAlert()))

	out := buf.String()
	assert.Contains(t, out, "[ERROR]")
	assert.Contains(t, out, "drift detected in billing.go")
	assert.Contains(t, out, "occurrence 3")
}

func TestFileChannelAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	ch := NewFileChannel(path)

	require.NoError(t, ch.Deliver(context.Background(), sampleAlert()))
	second := sampleAlert()
	second.ID = "a-2"
	require.NoError(t, ch.Deliver(context.Background(), second))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var alert types.Alert
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &alert))
		ids = append(ids, alert.ID)
	}
	assert.Equal(t, []string{"a-1", "a-2"}, ids)
}

func TestConsoleChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewConsoleChannel(&buf)
	require.NoError(t, ch.Deliver(context.Background(), sampleAlert()))
	assert.Contains(t, buf.String(), "drift detected in billing.go")
}

func TestWebhookChannel(t *testing.T) {
	var received types.Alert
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL, map[string]string{"X-Token": "secret"})
	require.NoError(t, ch.Deliver(context.Background(), sampleAlert()))
	assert.Equal(t, "a-1", received.ID)
	assert.Equal(t, "secret", gotHeader)
}

func TestWebhookChannelErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL, nil)
	err := ch.Deliver(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestEmailChannelBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string

	ch := NewEmailChannel("mail.example.com", 587, "drift@example.com",
		[]string{"ops@example.com"}, "user", "pass", false)
	ch.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	require.NoError(t, ch.Deliver(context.Background(), sampleAlert()))
	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "drift@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.True(t, strings.Contains(gotMsg, "Subject: [driftwatch ERROR]"))
	assert.True(t, strings.Contains(gotMsg, "billing.go"))
}

func TestEmailChannelStartTLS(t *testing.T) {
	ch := NewEmailChannel("mail.example.com", 587, "drift@example.com",
		[]string{"ops@example.com"}, "", "", true)
	assert.True(t, ch.startTLS, "starttls flag must reach the channel")

	// The explicit-upgrade path surfaces connection failures instead of
	// falling back to plaintext.
	err := ch.sendWithStartTLS("localhost:1", nil, "drift@example.com",
		[]string{"ops@example.com"}, []byte("msg"))
	require.Error(t, err)
}

func TestChannelsFromConfigEnablesEmail(t *testing.T) {
	cfg := config.AlertConfig{
		Email: config.EmailConfig{
			Host:     "mail.example.com",
			Port:     587,
			From:     "drift@example.com",
			To:       []string{"ops@example.com"},
			StartTLS: true,
		},
	}

	var email *EmailChannel
	for _, ch := range ChannelsFromConfig(cfg) {
		if e, ok := ch.(*EmailChannel); ok {
			email = e
		}
	}
	require.NotNil(t, email, "configured email host must enable the channel")
	assert.True(t, email.startTLS)
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(context.Background(), Event{
		Type:      EventPaymentDecide,
		AccountID: "a1",
		Details:   map[string]interface{}{"decision": "approved", "amount": 20},
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "security", entry["audit"])
	assert.Equal(t, "payment_decide", entry["event_type"])
	assert.Equal(t, "a1", entry["account_id"])
	assert.Equal(t, "approved", entry["decision"])
	assert.Equal(t, float64(20), entry["amount"])
	assert.NotContains(t, entry, "client_id")
}

func TestLogFromRequest(t *testing.T) {
	buf := captureLog(t)

	r := httptest.NewRequest("POST", "/v1/auth/login", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("User-Agent", "studydesk-web")

	LogFromRequest(r, Event{Type: EventLoginFailure, ClientID: "tab-1"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203.0.113.9", entry["ip"])
	assert.Equal(t, "studydesk-web", entry["user_agent"])
	assert.Equal(t, "tab-1", entry["client_id"])
}

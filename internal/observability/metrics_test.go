package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.RecordRelay("user_message", OutcomeOK)
	m.RecordNotification("ticket_closed", OutcomeFailed)
	m.RecordRequest("/health", "GET", 200, 5*time.Millisecond)
	m.RecordAmbiguity()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `relay_events_total{event="user_message",outcome="ok"} 1`)
	assert.Contains(t, string(body), `relay_notifications_total{kind="ticket_closed",outcome="failed"} 1`)
	assert.Contains(t, string(body), "relay_correlation_ambiguities_total 1")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRelay("x", OutcomeOK)
		m.RecordNotification("x", OutcomeOK)
		m.RecordError("/", "GET", "X")
		m.RecordAmbiguity()
	})
}

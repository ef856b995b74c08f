package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	req := require.New(t)
	m := New()

	m.PushDelivered()
	m.PushDelivered()
	m.PushDropped()
	m.SetOnlineUsers(3)
	m.Relayed(5)
	m.StoreError("send")

	req.Equal(2.0, testutil.ToFloat64(m.Pushes.WithLabelValues("delivered")))
	req.Equal(1.0, testutil.ToFloat64(m.Pushes.WithLabelValues("dropped")))
	req.Equal(3.0, testutil.ToFloat64(m.OnlineUsers))
	req.Equal(5.0, testutil.ToFloat64(m.OutboxRelayed))
	req.Equal(1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("send")))
}

func TestMetrics_Nil_Is_Noop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.PushDelivered()
		m.PushDropped()
		m.SetOnlineUsers(1)
		m.ConnectionOpened()
		m.ObserveHTTP(http.MethodGet, http.StatusOK, 0.1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	req := require.New(t)
	m := New()
	m.MessageStored()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	req.Equal(http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	req.NoError(err)
	req.Contains(string(body), "youapp_messages_stored_total 1")
}

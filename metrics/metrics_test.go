package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTick(150*time.Millisecond, false)
	m.ObserveTick(time.Second, true)
	m.UpstreamError("get streams")
	m.UpstreamError("get streams")
	m.Notification(nil)
	m.Notification(errors.New("missing access"))
	m.NotificationRejected()
	m.TokenRefresh(nil)
	m.SetAnnounced(3)
	m.Command("setup")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollTicks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollTicks.WithLabelValues("degraded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamErrors.WithLabelValues("get streams")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AnnouncedTracked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandInvocations.WithLabelValues("setup")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PollDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTick(time.Second, false)
		m.UpstreamError("get streams")
		m.Notification(nil)
		m.TokenRefresh(nil)
		m.SetAnnounced(1)
		m.Command("setup")
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestServerHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Notification(nil)

	srv := NewServer(ServerParams{Config: Config{ListenAddr: "127.0.0.1:0"}, Gatherer: reg})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `grassy_notifications_total{status="ok"} 1`))

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{ListenAddr: ":9090"}.Enabled())
}

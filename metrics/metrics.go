package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "grassy"

// Metrics holds the notifier's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	PollTicks          *prometheus.CounterVec
	PollDuration       prometheus.Histogram
	UpstreamErrors     *prometheus.CounterVec
	NotificationsSent  *prometheus.CounterVec
	TokenRefreshes     *prometheus.CounterVec
	AnnouncedTracked   prometheus.Gauge
	CommandInvocations *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Poll loop ticks by outcome",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of one poll tick in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "twitch_upstream_errors_total",
			Help:      "Failed Twitch requests by operation",
		}, []string{"operation"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Stream notifications by status",
		}, []string{"status"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Twitch credential refresh attempts by status",
		}, []string{"status"}),
		AnnouncedTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "announced_broadcasts",
			Help:      "Broadcasts currently remembered as announced",
		}),
		CommandInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Slash command invocations by subcommand",
		}, []string{"command"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PollTicks,
			m.PollDuration,
			m.UpstreamErrors,
			m.NotificationsSent,
			m.TokenRefreshes,
			m.AnnouncedTracked,
			m.CommandInvocations,
		)
	}
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveTick records a finished poll tick.
func (m *Metrics) ObserveTick(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "degraded"
	}
	m.PollTicks.WithLabelValues(outcome).Inc()
	m.PollDuration.Observe(d.Seconds())
}

func (m *Metrics) UpstreamError(op string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Notification(err error) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(status(err)).Inc()
}

// NotificationRejected counts a send Discord refused for good, such as a
// deleted channel or missing permissions.
func (m *Metrics) NotificationRejected() {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues("rejected").Inc()
}

func (m *Metrics) TokenRefresh(err error) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) SetAnnounced(n int) {
	if m == nil {
		return
	}
	m.AnnouncedTracked.Set(float64(n))
}

func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.CommandInvocations.WithLabelValues(name).Inc()
}

package core

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chatdesk/chatdesk/pkg/metrics"
)

type Metrics struct {
	apiResponseTime       *prometheus.HistogramVec
	apiErrorCounter       *prometheus.CounterVec
	liveConnections       *prometheus.GaugeVec
	socketEvents          *prometheus.CounterVec
	notificationsSent     *prometheus.CounterVec
	notificationsStored   *prometheus.CounterVec
	notificationsReplayed *prometheus.CounterVec
}

func NewMetrics(ns, system string) *Metrics {
	metrics.SetupMetricsManager(ns, system, prometheus.DefaultRegisterer.(*prometheus.Registry))

	m := &Metrics{
		apiResponseTime:       metrics.NewHistogramVec("api_response_time", []string{"api"}),
		apiErrorCounter:       metrics.NewCounterVec("api_error", []string{"method", "api", "status"}),
		liveConnections:       metrics.NewGaugeVec("live_connections", []string{"role"}),
		socketEvents:          metrics.NewCounterVec("socket_events", []string{"event"}),
		notificationsSent:     metrics.NewCounterVec("notifications_sent", []string{"event"}),
		notificationsStored:   metrics.NewCounterVec("notifications_stored", []string{"event"}),
		notificationsReplayed: metrics.NewCounterVec("notifications_replayed", []string{"target_type"}),
	}

	return m
}

func (m *Metrics) ApiResponseTimer(api string) *prometheus.Timer {
	return prometheus.NewTimer(m.apiResponseTime.WithLabelValues(api))
}

func (m *Metrics) ApiErrorInc(method, api string, status int) {
	m.apiErrorCounter.WithLabelValues(method, api, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ConnectionOpened(role string) {
	m.liveConnections.WithLabelValues(role).Inc()
}

func (m *Metrics) ConnectionClosed(role string) {
	m.liveConnections.WithLabelValues(role).Dec()
}

func (m *Metrics) SocketEventInc(event string) {
	m.socketEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) NotificationSentInc(event string) {
	m.notificationsSent.WithLabelValues(event).Inc()
}

func (m *Metrics) NotificationStoredInc(event string) {
	m.notificationsStored.WithLabelValues(event).Inc()
}

func (m *Metrics) NotificationReplayedInc(targetType string) {
	m.notificationsReplayed.WithLabelValues(targetType).Inc()
}

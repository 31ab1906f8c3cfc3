package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records per-command outcomes.
type Metrics interface {
	RecordCommand(command string, success bool, duration time.Duration)
}

// NoOpMetrics is used when no collector is wired.
type NoOpMetrics struct{}

func (n *NoOpMetrics) RecordCommand(command string, success bool, duration time.Duration) {}

// PrometheusMetrics implements Metrics using Prometheus.
type PrometheusMetrics struct {
	commandCounter  *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		commandCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "command_executions_total",
			Help: "Command invocations by name and outcome.",
		}, []string{"command", "status"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "End-to-end command latency including commit.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
	}
	reg.MustRegister(m.commandCounter, m.commandDuration)
	return m
}

func (m *PrometheusMetrics) RecordCommand(command string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.commandCounter.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains Prometheus metrics for emergency action providers.
type NotificationMetrics struct {
	ProviderDeliveriesTotal  *prometheus.CounterVec   // by provider, status
	ProviderDeliveryDuration *prometheus.HistogramVec // by provider
	ProviderLastSuccessTime  *prometheus.GaugeVec     // by provider
	registry                 *prometheus.Registry
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}

	m.ProviderDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_provider_deliveries_total",
		Help: "Total number of emergency delivery attempts by provider and status",
	}, []string{"provider", "status"}) // status: success, error, timeout

	m.ProviderDeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notification_provider_delivery_duration_seconds",
		Help:    "Time taken for emergency delivery by provider",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"provider"})

	m.ProviderLastSuccessTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notification_provider_last_success_timestamp_seconds",
		Help: "Timestamp of the last successful delivery by provider",
	}, []string{"provider"})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ProviderDeliveriesTotal.Describe(ch)
	m.ProviderDeliveryDuration.Describe(ch)
	m.ProviderLastSuccessTime.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ProviderDeliveriesTotal.Collect(ch)
	m.ProviderDeliveryDuration.Collect(ch)
	m.ProviderLastSuccessTime.Collect(ch)
}

// RecordDelivery records one delivery attempt of a provider.
func (m *NotificationMetrics) RecordDelivery(provider, status string, duration time.Duration) {
	m.ProviderDeliveriesTotal.WithLabelValues(provider, status).Inc()
	m.ProviderDeliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if status == "success" {
		m.ProviderLastSuccessTime.WithLabelValues(provider).SetToCurrentTime()
	}
}

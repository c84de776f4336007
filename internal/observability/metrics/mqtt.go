package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains the Prometheus metrics of the broker connection.
// Topic labels come from configuration, so their cardinality is fixed.
type MQTTMetrics struct {
	connected        prometheus.Gauge
	connectionLosses prometheus.Counter
	reconnects       prometheus.Counter
	published        *prometheus.CounterVec // by topic, status
	received         *prometheus.CounterVec // by topic
	publishLatency   prometheus.Histogram
	payloadBytes     *prometheus.HistogramVec // by direction: out, in
}

// NewMQTTMetrics creates and registers the MQTT metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_connection_status",
			Help: "Broker connection state (1 for connected, 0 for disconnected)",
		}),
		connectionLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_connection_lost_total",
			Help: "Times an established broker connection was lost",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_reconnect_attempts_total",
			Help: "Reconnect attempts made by the client",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_messages_published_total",
			Help: "Publish attempts, by topic and status",
		}, []string{"topic", "status"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_messages_received_total",
			Help: "Messages received on a subscription, by topic",
		}, []string{"topic"}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mqtt_publish_latency_seconds",
			Help:    "Time from publish to broker acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		payloadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mqtt_payload_bytes",
			Help:    "Payload sizes, by direction",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		}, []string{"direction"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// SetConnected records the connection state.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// ConnectionLost counts a dropped connection and marks the client disconnected.
func (m *MQTTMetrics) ConnectionLost() {
	m.connectionLosses.Inc()
	m.connected.Set(0)
}

// Reconnecting counts one reconnect attempt.
func (m *MQTTMetrics) Reconnecting() {
	m.reconnects.Inc()
}

// RecordPublish counts a publish attempt. The payload size is only
// observed for delivered messages.
func (m *MQTTMetrics) RecordPublish(topic string, size int, err error) {
	if err != nil {
		m.published.WithLabelValues(topic, "error").Inc()
		return
	}
	m.published.WithLabelValues(topic, "success").Inc()
	m.payloadBytes.WithLabelValues("out").Observe(float64(size))
}

// RecordReceived counts a message arriving on a subscription.
func (m *MQTTMetrics) RecordReceived(topic string, size int) {
	m.received.WithLabelValues(topic).Inc()
	m.payloadBytes.WithLabelValues("in").Observe(float64(size))
}

// StartPublishTimer starts timing one publish.
func (m *MQTTMetrics) StartPublishTimer() *PublishTimer {
	return &PublishTimer{start: time.Now(), latency: m.publishLatency}
}

// PublishTimer measures one publish operation.
type PublishTimer struct {
	start   time.Time
	latency prometheus.Histogram
}

// ObserveDuration records the time since the timer started.
func (pt *PublishTimer) ObserveDuration() {
	pt.latency.Observe(time.Since(pt.start).Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.connected.Describe(ch)
	m.connectionLosses.Describe(ch)
	m.reconnects.Describe(ch)
	m.published.Describe(ch)
	m.received.Describe(ch)
	m.publishLatency.Describe(ch)
	m.payloadBytes.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.connected.Collect(ch)
	m.connectionLosses.Collect(ch)
	m.reconnects.Collect(ch)
	m.published.Collect(ch)
	m.received.Collect(ch)
	m.publishLatency.Collect(ch)
	m.payloadBytes.Collect(ch)
}

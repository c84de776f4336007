// Package metrics provides custom Prometheus metrics for the fallguard components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AccidentMetrics contains the Prometheus metrics of the accident coordinator.
// It satisfies accident.Metrics.
type AccidentMetrics struct {
	AudioTicks       *prometheus.CounterVec // by result: alert, quiet
	AudioDropped     prometheus.Counter
	Frames           *prometheus.CounterVec // by result: corroborating, neutral
	FramesDropped    prometheus.Counter
	LateFrames       prometheus.Counter
	State            *prometheus.GaugeVec // 1 for the current state
	CameraActive     prometheus.Gauge
	AccidentSeconds  prometheus.Gauge
	EpisodesStarted  prometheus.Counter
	EpisodesEnded    *prometheus.CounterVec // by outcome
	Triggers         *prometheus.CounterVec // by status: success, error
	CameraErrors     *prometheus.CounterVec // by operation: start, stop, frame_timeout
	SourceFailures   *prometheus.CounterVec // by stream
	registry         *prometheus.Registry
	knownStateLabels []string
}

// NewAccidentMetrics creates and registers the coordinator metrics.
func NewAccidentMetrics(registry *prometheus.Registry) (*AccidentMetrics, error) {
	m := &AccidentMetrics{
		registry:         registry,
		knownStateLabels: []string{"idle", "warmup", "monitoring", "triggered"},
	}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register accident metrics: %w", err)
	}
	return m, nil
}

func (m *AccidentMetrics) initMetrics() {
	m.AudioTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_audio_scores_total",
		Help: "Audio classifier scores processed, by result",
	}, []string{"result"})

	m.AudioDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fallguard_audio_scores_dropped_total",
		Help: "Audio scores dropped because the queue was full",
	})

	m.Frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_frames_total",
		Help: "Analyzed frames processed while the camera was on, by result",
	}, []string{"result"})

	m.FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fallguard_frames_dropped_total",
		Help: "Frames replaced by a newer frame before they were processed",
	})

	m.LateFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fallguard_frames_discarded_total",
		Help: "Frames discarded because the camera was not active",
	})

	m.State = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fallguard_state",
		Help: "Current coordinator state (1 for the active state)",
	}, []string{"state"})

	m.CameraActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fallguard_camera_active",
		Help: "Camera power state (1 for on, 0 for off)",
	})

	m.AccidentSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fallguard_accident_seconds",
		Help: "Corroborated accident time of the current episode",
	})

	m.EpisodesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fallguard_episodes_started_total",
		Help: "Episodes opened by an audio alert",
	})

	m.EpisodesEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_episodes_ended_total",
		Help: "Episodes closed, by outcome",
	}, []string{"outcome"})

	m.Triggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_emergency_triggers_total",
		Help: "Emergency actions dispatched, by status",
	}, []string{"status"})

	m.CameraErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_camera_errors_total",
		Help: "Camera power failures, by operation",
	}, []string{"operation"})

	m.SourceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_source_failures_total",
		Help: "Classifier initialization failures, by stream",
	}, []string{"stream"})
}

func (m *AccidentMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AudioTicks, m.AudioDropped, m.Frames, m.FramesDropped, m.LateFrames,
		m.State, m.CameraActive, m.AccidentSeconds, m.EpisodesStarted,
		m.EpisodesEnded, m.Triggers, m.CameraErrors, m.SourceFailures,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *AccidentMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *AccidentMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordAudio counts one audio tick.
func (m *AccidentMetrics) RecordAudio(alert bool) {
	m.AudioTicks.WithLabelValues(resultLabel(alert, "alert", "quiet")).Inc()
}

// RecordFrame counts one processed frame.
func (m *AccidentMetrics) RecordFrame(corroborating bool) {
	m.Frames.WithLabelValues(resultLabel(corroborating, "corroborating", "neutral")).Inc()
}

// RecordAudioDropped counts an audio score lost to a full queue.
func (m *AccidentMetrics) RecordAudioDropped() {
	m.AudioDropped.Inc()
}

// RecordFramesDropped counts frames overwritten in the mailbox.
func (m *AccidentMetrics) RecordFramesDropped(n int) {
	m.FramesDropped.Add(float64(n))
}

// RecordLateFrame counts a frame that arrived with the camera off.
func (m *AccidentMetrics) RecordLateFrame() {
	m.LateFrames.Inc()
}

// SetState marks state as the current one.
func (m *AccidentMetrics) SetState(state string) {
	for _, s := range m.knownStateLabels {
		m.State.WithLabelValues(s).Set(0)
	}
	m.State.WithLabelValues(state).Set(1)
}

// SetCameraActive updates the camera power gauge.
func (m *AccidentMetrics) SetCameraActive(active bool) {
	if active {
		m.CameraActive.Set(1)
	} else {
		m.CameraActive.Set(0)
	}
}

// SetAccidentSeconds updates the accident time gauge.
func (m *AccidentMetrics) SetAccidentSeconds(seconds float64) {
	m.AccidentSeconds.Set(seconds)
}

// RecordEpisodeStarted counts an opened episode.
func (m *AccidentMetrics) RecordEpisodeStarted() {
	m.EpisodesStarted.Inc()
}

// RecordEpisodeEnded counts a closed episode.
func (m *AccidentMetrics) RecordEpisodeEnded(outcome string) {
	m.EpisodesEnded.WithLabelValues(outcome).Inc()
}

// RecordTrigger counts a dispatched emergency action.
func (m *AccidentMetrics) RecordTrigger(err error) {
	m.Triggers.WithLabelValues(resultLabel(err == nil, "success", "error")).Inc()
}

// RecordCameraError counts a camera power failure.
func (m *AccidentMetrics) RecordCameraError(operation string) {
	m.CameraErrors.WithLabelValues(operation).Inc()
}

// RecordSourceFailure counts a classifier failure.
func (m *AccidentMetrics) RecordSourceFailure(stream string) {
	m.SourceFailures.WithLabelValues(stream).Inc()
}

func resultLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

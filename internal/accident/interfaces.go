package accident

import "context"

// CameraPowerController powers the camera and analyzer pipeline.
// Start is idempotent when already on, Stop when already off.
type CameraPowerController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EmergencyNotifier performs the external emergency action.
// Failures are logged by the caller and never retried.
type EmergencyNotifier interface {
	Trigger(ctx context.Context, incident Incident) error
}

// StatusSink receives status output. Implementations must not block.
type StatusSink interface {
	VideoStatus(VideoStatus)
	AudioStatus(AudioStatus)
	StreamError(StreamError)
	EpisodeChanged(Episode)
}

// Metrics records coordinator activity.
type Metrics interface {
	RecordAudio(alert bool)
	RecordFrame(corroborating bool)
	RecordAudioDropped()
	RecordFramesDropped(n int)
	RecordLateFrame()
	SetState(state string)
	SetCameraActive(active bool)
	SetAccidentSeconds(seconds float64)
	RecordEpisodeStarted()
	RecordEpisodeEnded(outcome string)
	RecordTrigger(err error)
	RecordCameraError(operation string)
	RecordSourceFailure(stream string)
}

type nopSink struct{}

func (nopSink) VideoStatus(VideoStatus) {}
func (nopSink) AudioStatus(AudioStatus) {}
func (nopSink) StreamError(StreamError) {}
func (nopSink) EpisodeChanged(Episode) {}

type nopMetrics struct{}

func (nopMetrics) RecordAudio(bool) {}
func (nopMetrics) RecordFrame(bool) {}
func (nopMetrics) RecordAudioDropped() {}
func (nopMetrics) RecordFramesDropped(int) {}
func (nopMetrics) RecordLateFrame() {}
func (nopMetrics) SetState(string) {}
func (nopMetrics) SetCameraActive(bool) {}
func (nopMetrics) SetAccidentSeconds(float64) {}
func (nopMetrics) RecordEpisodeStarted() {}
func (nopMetrics) RecordEpisodeEnded(string) {}
func (nopMetrics) RecordTrigger(error) {}
func (nopMetrics) RecordCameraError(string) {}
func (nopMetrics) RecordSourceFailure(string) {}

// MultiSink fans status out to several sinks.
type MultiSink []StatusSink

func (m MultiSink) VideoStatus(s VideoStatus) {
	for _, sink := range m {
		sink.VideoStatus(s)
	}
}

func (m MultiSink) AudioStatus(s AudioStatus) {
	for _, sink := range m {
		sink.AudioStatus(s)
	}
}

func (m MultiSink) StreamError(e StreamError) {
	for _, sink := range m {
		sink.StreamError(e)
	}
}

func (m MultiSink) EpisodeChanged(e Episode) {
	for _, sink := range m {
		sink.EpisodeChanged(e)
	}
}

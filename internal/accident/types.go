// Package accident fuses the audio and video evidence streams into a single
// accident decision. It owns the camera power rules, accumulates posture
// evidence while an audio alert is open and fires the emergency action at most
// once per episode.
//
// All decisions are made by one goroutine (Coordinator.Run). Producers hand
// evidence over through non-blocking submit methods.
package accident

import (
	"math"
	"time"
)

// State is the coordinator's top-level state
type State int

const (
	StateIdle State = iota
	StateWarmup
	StateMonitoring
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarmup:
		return "warmup"
	case StateMonitoring:
		return "monitoring"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Stream identifies where a surfaced error came from. Only audio and video
// are evidence streams.
type Stream string

const (
	StreamAudio    Stream = "audio"
	StreamVideo    Stream = "video"
	StreamNotifier Stream = "notifier"
)

// AudioScore is one classifier result for the "accident sound" class.
type AudioScore struct {
	Score float64   `json:"score"`
	At    time.Time `json:"timestamp"`
}

// BoundingBox is a detection box in image coordinates.
type BoundingBox struct {
	Left   float64 `json:"left" yaml:"left"`
	Top    float64 `json:"top" yaml:"top"`
	Right  float64 `json:"right" yaml:"right"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
}

// Width of the box
func (b BoundingBox) Width() float64 { return b.Right - b.Left }

// Height of the box
func (b BoundingBox) Height() float64 { return b.Bottom - b.Top }

// Lying reports whether the box is wider than tall.
func (b BoundingBox) Lying() bool { return b.Width() > b.Height() }

// Detection is one object detector result. Label is the top category.
type Detection struct {
	Label string      `json:"label" yaml:"label"`
	Score float64     `json:"score" yaml:"score"`
	Box   BoundingBox `json:"box" yaml:"box"`
}

// Frame is the detector output for one analyzed camera frame.
type Frame struct {
	Detections []Detection `json:"detections"`
	At         time.Time   `json:"timestamp"`
}

// FirstWithLabel returns the first detection carrying label.
func (f Frame) FirstWithLabel(label string) (Detection, bool) {
	for _, d := range f.Detections {
		if d.Label == label {
			return d, true
		}
	}
	return Detection{}, false
}

// SourceState is the health reported by an evidence source
type SourceState string

const (
	SourceReady SourceState = "ready"
	SourceError SourceState = "error"
)

// SourceEvent reports a classifier coming up or failing.
type SourceEvent struct {
	Stream  Stream      `json:"stream"`
	State   SourceState `json:"state"`
	Message string      `json:"message,omitempty"`
}

// VideoStatus is emitted on every processed frame.
type VideoStatus struct {
	PersonPresent       bool    `json:"personPresent"`
	AccidentTimeSeconds float64 `json:"accidentTimeSeconds"`
}

// AudioStatus is emitted on every audio tick.
type AudioStatus struct {
	Alert bool    `json:"audioAlert"`
	Score float64 `json:"score"`
}

// ErrorKind classifies surfaced stream errors
type ErrorKind string

const (
	ErrorEvidenceSourceUnavailable ErrorKind = "evidence_source_unavailable"
	ErrorCameraPowerFailure        ErrorKind = "camera_power_failure"
	ErrorNotifierFailure           ErrorKind = "notifier_failure"
)

// StreamError is a non-fatal failure surfaced to status readers.
type StreamError struct {
	Stream  Stream    `json:"stream"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"timestamp"`
}

// Outcome describes how an episode ended
type Outcome string

const (
	OutcomeOpen          Outcome = ""
	OutcomeEmergency     Outcome = "emergency"
	OutcomeCooldown      Outcome = "cooldown"
	OutcomeCameraFailure Outcome = "camera_failure"
	OutcomeShutdown      Outcome = "shutdown"
)

// Episode is the bookkeeping record of one suspected accident.
// EmergencyTriggered episodes end with OutcomeEmergency when the camera hold runs out.
type Episode struct {
	ID                  string    `json:"id"`
	StartedAt           time.Time `json:"startedAt"`
	EndedAt             time.Time `json:"endedAt,omitzero"`
	TriggeredAt         time.Time `json:"triggeredAt,omitzero"`
	AccidentSeconds     float64   `json:"accidentSeconds"`
	EmergencyTriggered  bool      `json:"emergencyTriggered"`
	Outcome             Outcome   `json:"outcome,omitempty"`
	AlertCount          int       `json:"alertCount"`
	FramesProcessed     int       `json:"framesProcessed"`
	CorroboratingFrames int       `json:"corroboratingFrames"`
}

// Ended reports whether the episode is closed
func (e Episode) Ended() bool { return e.Outcome != OutcomeOpen }

// Incident is handed to the emergency notifier.
type Incident struct {
	EpisodeID           string
	AccidentTimeSeconds float64
	StartedAt           time.Time
	TriggeredAt         time.Time
}

// Snapshot is a read-only copy of the coordinator state.
type Snapshot struct {
	State               State   `json:"-"`
	StateName           string  `json:"state"`
	CameraActive        bool    `json:"cameraActive"`
	AccidentTimeSeconds float64 `json:"accidentTimeSeconds"`
	AudioTriggered      bool    `json:"audioTriggered"`
	EmergencyTriggered  bool    `json:"emergencyTriggered"`
	CameraHoldFrames    int     `json:"cameraHoldFrames"`
	EpisodeID           string  `json:"episodeId,omitempty"`
	AudioDegraded       bool    `json:"audioDegraded"`
	VideoDegraded       bool    `json:"videoDegraded"`
}

// RoundSeconds rounds an accident time to 0.01 s for display.
func RoundSeconds(s float64) float64 {
	return math.Round(s*100) / 100
}

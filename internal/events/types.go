// Package events provides an asynchronous event bus that decouples the
// accident coordinator's status output from slow consumers such as MQTT
// publishing and the episode database.
package events

import (
	"time"

	"github.com/tphakala/fallguard/internal/accident"
)

// Kind identifies the payload of an Event
type Kind string

const (
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
	KindError   Kind = "error"
	KindEpisode Kind = "episode"
)

// Event is one status update. Exactly one payload field is set, matching Kind.
type Event struct {
	Kind    Kind
	At      time.Time
	Video   accident.VideoStatus
	Audio   accident.AudioStatus
	Error   accident.StreamError
	Episode accident.Episode
}

// Payload returns the value matching Kind.
func (e Event) Payload() any {
	switch e.Kind {
	case KindVideo:
		return e.Video
	case KindAudio:
		return e.Audio
	case KindError:
		return e.Error
	case KindEpisode:
		return e.Episode
	default:
		return nil
	}
}

// EventConsumer processes status events
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single event. It runs on a bus worker.
	ProcessEvent(event Event) error
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}

package events

import (
	"time"

	"github.com/tphakala/fallguard/internal/accident"
)

// StatusSink adapts the EventBus to accident.StatusSink. It never blocks.
// Status updates are dropped and counted when the buffer is full; episode
// changes are always queued because the datastore keeps the last one it sees.
type StatusSink struct {
	bus   *EventBus
	clock func() time.Time
}

// NewStatusSink creates a sink publishing to bus
func NewStatusSink(bus *EventBus) *StatusSink {
	return &StatusSink{bus: bus, clock: time.Now}
}

func (s *StatusSink) VideoStatus(v accident.VideoStatus) {
	s.bus.TryPublish(Event{Kind: KindVideo, At: s.clock(), Video: v})
}

func (s *StatusSink) AudioStatus(a accident.AudioStatus) {
	s.bus.TryPublish(Event{Kind: KindAudio, At: s.clock(), Audio: a})
}

func (s *StatusSink) StreamError(e accident.StreamError) {
	at := e.At
	if at.IsZero() {
		at = s.clock()
	}
	s.bus.TryPublish(Event{Kind: KindError, At: at, Error: e})
}

func (s *StatusSink) EpisodeChanged(e accident.Episode) {
	s.bus.Publish(Event{Kind: KindEpisode, At: s.clock(), Episode: e})
}

// ConsumerFunc turns a function into a named EventConsumer.
type ConsumerFunc struct {
	ConsumerName string
	Fn           func(Event) error
}

func (c ConsumerFunc) Name() string                   { return c.ConsumerName }
func (c ConsumerFunc) ProcessEvent(event Event) error { return c.Fn(event) }

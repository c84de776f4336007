package datastore

import (
	"context"
	"time"

	"github.com/tphakala/fallguard/internal/events"
)

const saveTimeout = 10 * time.Second

// Recorder is an events consumer that persists every episode change.
type Recorder struct {
	store Interface
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Interface) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Name() string { return "episode-recorder" }

func (r *Recorder) ProcessEvent(e events.Event) error {
	if e.Kind != events.KindEpisode {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	return r.store.SaveEpisode(ctx, e.Episode)
}

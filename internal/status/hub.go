// Package status keeps the latest coordinator output for readers and
// republishes it on MQTT.
package status

import (
	"slices"
	"sync"
	"time"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/events"
)

// DefaultErrorHistory is how many recent stream errors the hub remembers
const DefaultErrorHistory = 20

// View is the latest status as served by the API.
type View struct {
	Video         accident.VideoStatus   `json:"video"`
	VideoAt       time.Time              `json:"videoUpdatedAt,omitzero"`
	Audio         accident.AudioStatus   `json:"audio"`
	AudioAt       time.Time              `json:"audioUpdatedAt,omitzero"`
	Episode       *accident.Episode      `json:"episode,omitempty"`
	RecentErrors  []accident.StreamError `json:"recentErrors"`
	EpisodesTotal int                    `json:"episodesTotal"`
}

// Hub is an events consumer holding the most recent status of each kind.
type Hub struct {
	mu           sync.RWMutex
	view         View
	errorHistory int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{errorHistory: DefaultErrorHistory}
}

func (h *Hub) Name() string { return "status-hub" }

func (h *Hub) ProcessEvent(e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e.Kind {
	case events.KindVideo:
		h.view.Video = e.Video
		h.view.VideoAt = e.At
	case events.KindAudio:
		h.view.Audio = e.Audio
		h.view.AudioAt = e.At
	case events.KindError:
		h.view.RecentErrors = append(h.view.RecentErrors, e.Error)
		if extra := len(h.view.RecentErrors) - h.errorHistory; extra > 0 {
			h.view.RecentErrors = slices.Delete(h.view.RecentErrors, 0, extra)
		}
	case events.KindEpisode:
		ep := e.Episode
		if h.view.Episode == nil || h.view.Episode.ID != ep.ID {
			h.view.EpisodesTotal++
		}
		h.view.Episode = &ep
		if ep.Ended() {
			// Reset the video panel once the camera is released.
			h.view.Video = accident.VideoStatus{}
			h.view.VideoAt = e.At
		}
	}
	return nil
}

// View returns a copy of the latest status.
func (h *Hub) View() View {
	h.mu.RLock()
	defer h.mu.RUnlock()

	v := h.view
	v.RecentErrors = slices.Clone(h.view.RecentErrors)
	if v.RecentErrors == nil {
		v.RecentErrors = []accident.StreamError{}
	}
	if h.view.Episode != nil {
		ep := *h.view.Episode
		v.Episode = &ep
	}
	return v
}

package status

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/events"
)

func TestHubKeepsLatest(t *testing.T) {
	t.Parallel()
	h := NewHub()
	at := time.Unix(100, 0)

	require.NoError(t, h.ProcessEvent(events.Event{Kind: events.KindAudio, At: at, Audio: accident.AudioStatus{Alert: true, Score: 0.8}}))
	require.NoError(t, h.ProcessEvent(events.Event{Kind: events.KindVideo, At: at, Video: accident.VideoStatus{PersonPresent: true, AccidentTimeSeconds: 3.5}}))
	require.NoError(t, h.ProcessEvent(events.Event{Kind: events.KindEpisode, At: at, Episode: accident.Episode{ID: "ep-1"}}))

	v := h.View()
	assert.True(t, v.Audio.Alert)
	assert.InDelta(t, 3.5, v.Video.AccidentTimeSeconds, 1e-9)
	require.NotNil(t, v.Episode)
	assert.Equal(t, 1, v.EpisodesTotal)
	assert.Empty(t, v.RecentErrors)

	// Ending the episode clears the video panel; the same ID does not count twice.
	require.NoError(t, h.ProcessEvent(events.Event{Kind: events.KindEpisode, At: at.Add(time.Minute),
		Episode: accident.Episode{ID: "ep-1", Outcome: accident.OutcomeCooldown}}))
	v = h.View()
	assert.False(t, v.Video.PersonPresent)
	assert.Equal(t, 1, v.EpisodesTotal)
	assert.Equal(t, accident.OutcomeCooldown, v.Episode.Outcome)
}

func TestHubBoundsErrorHistory(t *testing.T) {
	t.Parallel()
	h := NewHub()
	for i := range DefaultErrorHistory + 5 {
		require.NoError(t, h.ProcessEvent(events.Event{Kind: events.KindError,
			Error: accident.StreamError{Message: fmt.Sprint(i)}}))
	}
	v := h.View()
	require.Len(t, v.RecentErrors, DefaultErrorHistory)
	assert.Equal(t, "5", v.RecentErrors[0].Message)

	// The returned slice is a copy.
	v.RecentErrors[0].Message = "changed"
	assert.Equal(t, "5", h.View().RecentErrors[0].Message)
}

type fakePublisher struct {
	connected bool
	topics    []string
	payloads  [][]byte
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestMQTTPublisherTopics(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{}
	p := NewMQTTPublisher(pub, "home/fallguard")

	require.NoError(t, p.ProcessEvent(events.Event{Kind: events.KindVideo}))
	assert.Empty(t, pub.topics, "nothing is published while disconnected")

	pub.connected = true
	require.NoError(t, p.ProcessEvent(events.Event{Kind: events.KindVideo,
		Video: accident.VideoStatus{PersonPresent: true, AccidentTimeSeconds: 1.5}}))
	require.NoError(t, p.ProcessEvent(events.Event{Kind: events.KindEpisode, Episode: accident.Episode{ID: "ep-9"}}))

	assert.Equal(t, []string{"home/fallguard/status/video", "home/fallguard/episode"}, pub.topics)
	var video map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &video))
	assert.Equal(t, true, video["personPresent"])
	assert.InDelta(t, 1.5, video["accidentTimeSeconds"], 1e-9)
	assert.Equal(t, "home/fallguard/status/error", p.Topic(events.KindError))
}

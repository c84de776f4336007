package accident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSimulator(t *testing.T, cfg Config, cam *fakeCamera, n *fakeNotifier) (*Simulator, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	sim, err := NewSimulator(t.Context(), cfg, cam, n,
		WithStatusSink(sink), WithLogger(quietLogger()))
	require.NoError(t, err)
	return sim, sink
}

func TestSimulatorScenarioA(t *testing.T) {
	cfg := DefaultConfig()
	cam := &fakeCamera{}
	n := &fakeNotifier{}
	sim, _ := newTestSimulator(t, cfg, cam, n)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for _, score := range []float64{0, 0, 0.9, 0} {
		at = at.Add(100 * time.Millisecond)
		sim.Audio(at, AudioScore{Score: score})
	}
	at = at.Add(cfg.WarmupDelay)
	sim.Advance(at)
	require.True(t, sim.Snapshot().CameraActive)

	tick := time.Second / time.Duration(cfg.FrameRate)
	for range 300 {
		at = at.Add(tick)
		sim.Frame(at, Frame{Detections: []Detection{lyingPerson}})
	}
	assert.InDelta(t, 10.0, sim.Snapshot().AccidentTimeSeconds, 1e-9)
	assert.Zero(t, sim.Triggers())

	at = at.Add(tick)
	sim.Frame(at, Frame{Detections: []Detection{lyingPerson}})
	assert.Equal(t, 1, sim.Triggers())
	require.Equal(t, 1, n.count())
	assert.InDelta(t, 10.03, n.incidents[0].AccidentTimeSeconds, 1e-9)
}

func TestSimulatorAppliesDeadlinesBeforeEvents(t *testing.T) {
	cfg := DefaultConfig()
	cam := &fakeCamera{}
	sim, sink := newTestSimulator(t, cfg, cam, &fakeNotifier{})

	at := time.Unix(1000, 0)
	sim.Audio(at, AudioScore{Score: 0.8})
	deadline, ok := sim.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, at.Add(cfg.WarmupDelay), deadline)

	// A frame well after the warm-up finds the camera on; a frame after
	// the stall timeout finds it released.
	sim.Frame(at.Add(time.Second), Frame{})
	assert.Equal(t, StateMonitoring, sim.Snapshot().State)

	sim.Frame(at.Add(time.Second+cfg.FrameTimeout+time.Millisecond), Frame{})
	assert.Equal(t, StateIdle, sim.Snapshot().State)
	assert.Equal(t, int32(1), cam.stops.Load())
	assert.Equal(t, OutcomeCameraFailure, sink.lastEpisode().Outcome)
}

func TestSimulatorNotifierFailureSurfaced(t *testing.T) {
	cfg := fastConfig()
	n := &fakeNotifier{err: errors.New("line busy")}
	sim, sink := newTestSimulator(t, cfg, &fakeCamera{}, n)

	at := time.Unix(0, 0)
	sim.Audio(at, AudioScore{Score: 0.9})
	for i := range 5 {
		sim.Frame(at.Add(time.Second+time.Duration(i)*33*time.Millisecond),
			Frame{Detections: []Detection{lyingPerson}})
	}
	require.Len(t, sink.errors(), 1)
	assert.Equal(t, ErrorNotifierFailure, sink.errors()[0].Kind)
	assert.Equal(t, StreamNotifier, sink.errors()[0].Stream)
	assert.True(t, sim.Snapshot().EmergencyTriggered)
}

func TestSimulatorCloseReleasesCamera(t *testing.T) {
	cam := &fakeCamera{}
	sim, sink := newTestSimulator(t, DefaultConfig(), cam, &fakeNotifier{})

	at := time.Unix(0, 0)
	sim.Audio(at, AudioScore{Score: 0.9})
	sim.Advance(at.Add(time.Second))
	require.True(t, sim.Snapshot().CameraActive)

	sim.Close(at.Add(2 * time.Second))
	assert.Equal(t, int32(1), cam.stops.Load())
	assert.Equal(t, OutcomeShutdown, sink.lastEpisode().Outcome)
}

func TestNewSimulatorRequiresCollaborators(t *testing.T) {
	_, err := NewSimulator(context.Background(), DefaultConfig(), &fakeCamera{}, nil)
	assert.Error(t, err)
}

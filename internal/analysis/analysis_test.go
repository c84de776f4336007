package analysis

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/evidence"
	"github.com/tphakala/fallguard/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener per DB until process exit
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

const hallwayFall = `
name: fall in the hallway
audio: [0, 0, 0.9, 0]
frames:
  - repeat: 301
    detections:
      - label: person
        score: 0.9
        box: {left: 0, top: 0, right: 200, bottom: 80}
tail: 25s
`

var quiet = logger.NewSlogLogger(io.Discard, logger.LogLevelError)

type failingNotifier struct{}

func (failingNotifier) Trigger(context.Context, accident.Incident) error {
	return errors.NewStd("dial script exited with status 1")
}

func TestSimulateHallwayFall(t *testing.T) {
	sc, err := evidence.ParseScenario([]byte(hallwayFall))
	require.NoError(t, err)

	res, err := Simulate(t.Context(), accident.DefaultConfig(), sc, SimulationOptions{Logger: quiet})
	require.NoError(t, err)

	assert.Equal(t, "fall in the hallway", res.Scenario)
	assert.Equal(t, sc.Duration(), res.Duration)
	assert.Equal(t, 1, res.Triggers)
	require.Len(t, res.Incidents, 1)
	assert.InDelta(t, 10.03, res.Incidents[0].AccidentTimeSeconds, 1e-9)

	require.Len(t, res.Episodes, 1)
	ep := res.Episodes[0]
	assert.True(t, ep.EmergencyTriggered)
	// frames stop long before the cool-down runs out, so the stall ends it
	assert.Equal(t, accident.OutcomeCameraFailure, ep.Outcome)
	assert.Equal(t, res.Incidents[0].EpisodeID, ep.ID)

	assert.Equal(t, accident.StateIdle, res.Final.State)
	assert.False(t, res.Final.CameraActive)
}

func TestSimulateNotifierFailureIsReported(t *testing.T) {
	sc, err := evidence.ParseScenario([]byte(hallwayFall))
	require.NoError(t, err)

	res, err := Simulate(t.Context(), accident.DefaultConfig(), sc, SimulationOptions{
		Notifier: failingNotifier{},
		Logger:   quiet,
	})
	require.NoError(t, err)

	// not retried
	assert.Equal(t, 1, res.Triggers)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, accident.ErrorNotifierFailure, res.Errors[0].Kind)
	assert.Equal(t, accident.StreamNotifier, res.Errors[0].Stream)
}

func TestSimulateQuietScenario(t *testing.T) {
	sc, err := evidence.ParseScenario([]byte("name: nothing happens\naudio: [0.1, 0.2, 0.3]\n"))
	require.NoError(t, err)

	res, err := Simulate(t.Context(), accident.DefaultConfig(), sc, SimulationOptions{Logger: quiet})
	require.NoError(t, err)
	assert.Zero(t, res.Triggers)
	assert.Empty(t, res.Episodes)
	assert.Equal(t, accident.StateIdle, res.Final.State)
}

func TestSimulateRejectsInvalidConfig(t *testing.T) {
	sc, err := evidence.ParseScenario([]byte(hallwayFall))
	require.NoError(t, err)

	cfg := accident.DefaultConfig()
	cfg.AudioThreshold = 2
	_, err = Simulate(t.Context(), cfg, sc, SimulationOptions{Logger: quiet})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{Version: "test"}
	s.Detector = conf.DetectorSettings{
		Audio:         conf.AudioDetectorSettings{Threshold: accident.DefaultAudioThreshold},
		Video:         conf.VideoDetectorSettings{FrameRate: accident.DefaultFrameRate, Label: accident.DefaultPersonLabel},
		Cooldown:      accident.DefaultCooldown,
		Accident:      conf.AccidentSettings{Threshold: accident.DefaultAccidentThreshold},
		NotifyTimeout: accident.DefaultNotifyTimeout,
		QueueSize:     accident.DefaultAudioQueueSize,
		Camera: conf.CameraTimingSettings{
			WarmupDelay:  accident.DefaultWarmupDelay,
			FrameTimeout: accident.DefaultFrameTimeout,
			StartTimeout: accident.DefaultStartTimeout,
			StopTimeout:  accident.DefaultStopTimeout,
		},
	}
	s.Camera.Controller = "none"
	s.Evidence.Source = "http"
	s.WebServer = conf.WebServerSettings{Enabled: true, Listen: "127.0.0.1:0"}
	s.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: filepath.Join(t.TempDir(), "db", "fallguard.db")}
	return s
}

func TestRealtimeAnalysisStopsOnCancel(t *testing.T) {
	settings := testSettings(t)
	require.NoError(t, conf.ValidateSettings(settings))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- RealtimeAnalysis(ctx, settings) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("RealtimeAnalysis did not stop")
	}

	_, err := os.Stat(settings.Output.SQLite.Path)
	assert.NoError(t, err, "database should have been created")
}

func TestRealtimeAnalysisRequiresMQTTForMQTTEvidence(t *testing.T) {
	settings := testSettings(t)
	settings.Evidence.Source = "mqtt"
	settings.Evidence.MQTT = conf.EvidenceMQTTSettings{AudioTopic: "a", VideoTopic: "v"}
	settings.WebServer.Enabled = false

	err := RealtimeAnalysis(t.Context(), settings)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

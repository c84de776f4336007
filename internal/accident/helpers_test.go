package accident

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/fallguard/internal/logger"
)

var (
	lyingPerson    = Detection{Label: "person", Score: 0.9, Box: BoundingBox{Left: 0, Top: 0, Right: 200, Bottom: 80}}
	standingPerson = Detection{Label: "person", Score: 0.9, Box: BoundingBox{Left: 0, Top: 0, Right: 80, Bottom: 200}}
	chair          = Detection{Label: "chair", Score: 0.7, Box: BoundingBox{Left: 0, Top: 0, Right: 300, Bottom: 50}}
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError)
}

// fakeEffects records the side effects requested by the machine.
type fakeEffects struct {
	starts    int
	stops     int
	stopErr   error
	incidents []Incident
	ids       int
}

func (f *fakeEffects) startCamera() { f.starts++ }

func (f *fakeEffects) stopCamera() error {
	f.stops++
	return f.stopErr
}

func (f *fakeEffects) trigger(i Incident) { f.incidents = append(f.incidents, i) }

func (f *fakeEffects) newEpisodeID() string {
	f.ids++
	return fmt.Sprintf("ep-%d", f.ids)
}

// recordingSink is a StatusSink that keeps everything it receives.
type recordingSink struct {
	mu       sync.Mutex
	video    []VideoStatus
	audio    []AudioStatus
	errs     []StreamError
	episodes []Episode
}

func (s *recordingSink) VideoStatus(v VideoStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = append(s.video, v)
}

func (s *recordingSink) AudioStatus(a AudioStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, a)
}

func (s *recordingSink) StreamError(e StreamError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, e)
}

func (s *recordingSink) EpisodeChanged(e Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes = append(s.episodes, e)
}

func (s *recordingSink) videoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.video)
}

func (s *recordingSink) errors() []StreamError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StreamError(nil), s.errs...)
}

func (s *recordingSink) lastEpisode() Episode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.episodes) == 0 {
		return Episode{}
	}
	return s.episodes[len(s.episodes)-1]
}

// harness drives a machine with an explicit clock.
type harness struct {
	t    *testing.T
	cfg  Config
	m    *machine
	fx   *fakeEffects
	sink *recordingSink
	now  time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	require.NoError(t, cfg.Validate())
	fx := &fakeEffects{}
	sink := &recordingSink{}
	return &harness{
		t:    t,
		cfg:  cfg,
		m:    newMachine(cfg, fx, sink, nopMetrics{}, quietLogger()),
		fx:   fx,
		sink: sink,
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (h *harness) frameInterval() time.Duration {
	return time.Second / time.Duration(h.cfg.FrameRate)
}

func (h *harness) audio(score float64) {
	h.now = h.now.Add(100 * time.Millisecond)
	h.m.onAudio(h.now, AudioScore{Score: score, At: h.now})
	h.m.advance(h.now)
}

// warmUp lets the warm-up delay pass and confirms the camera start.
func (h *harness) warmUp() {
	h.t.Helper()
	h.now = h.now.Add(h.cfg.WarmupDelay)
	h.m.advance(h.now)
	require.Equal(h.t, phaseStarting, h.m.phase)
	h.m.cameraStarted(h.now, nil)
	require.True(h.t, h.m.cameraActive)
}

// openEpisode raises an alert and brings the camera up.
func (h *harness) openEpisode() {
	h.t.Helper()
	h.audio(0.9)
	h.warmUp()
}

func (h *harness) frame(dets ...Detection) {
	h.now = h.now.Add(h.frameInterval())
	h.m.onFrame(h.now, Frame{Detections: dets, At: h.now})
	h.m.advance(h.now)
}

func (h *harness) frames(n int, dets ...Detection) {
	for range n {
		h.frame(dets...)
	}
}

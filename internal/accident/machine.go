package accident

import (
	"fmt"
	"time"

	"github.com/tphakala/fallguard/internal/logger"
)

// warmupPhase splits StateWarmup into its sub-phases
type warmupPhase int

const (
	phaseNone          warmupPhase = iota
	phasePendingStart              // waiting out the warm-up delay
	phaseStarting                  // Start() issued, result pending
	phaseAwaitingFrame             // camera on, no frame yet
)

// effects are the side effects the machine requests from its driver.
type effects interface {
	// startCamera issues Start() without blocking; the driver reports the
	// result back through cameraStarted.
	startCamera()
	// stopCamera issues Stop() and waits for it.
	stopCamera() error
	// trigger fires the emergency action without blocking.
	trigger(Incident)
	newEpisodeID() string
}

// machine is the decision state machine. It is not safe for concurrent use;
// the Coordinator serializes every call. Time is always passed in explicitly.
type machine struct {
	cfg     Config
	fx      effects
	sink    StatusSink
	metrics Metrics
	log     logger.Logger

	state            State
	phase            warmupPhase
	cameraActive     bool
	audioTriggered   bool
	emergencyTrigger bool
	cameraHoldFrames int
	corroborating    int

	startAt       time.Time
	frameDeadline time.Time

	audioDegraded bool
	videoDegraded bool

	episode Episode
}

func newMachine(cfg Config, fx effects, sink StatusSink, metrics Metrics, log logger.Logger) *machine {
	return &machine{
		cfg:     cfg,
		fx:      fx,
		sink:    sink,
		metrics: metrics,
		log:     log,
		state:   StateIdle,
	}
}

func (m *machine) accidentSeconds() float64 {
	return m.cfg.frameSeconds(m.corroborating)
}

// onAudio handles one audio classifier tick.
func (m *machine) onAudio(now time.Time, s AudioScore) {
	alert := !m.audioDegraded && s.Score > m.cfg.AudioThreshold
	m.metrics.RecordAudio(alert)
	m.sink.AudioStatus(AudioStatus{Alert: alert, Score: s.Score})

	if !alert {
		// The hold only counts down on frames; onFrame ends the episode.
		return
	}

	if m.state == StateIdle {
		m.openEpisode(now)
		return
	}

	// Repeated alerts only extend the camera window.
	m.cameraHoldFrames = m.cfg.CooldownFrames
	m.episode.AlertCount++
	m.log.Debug("audio alert refreshed camera hold",
		logger.String("episode_id", m.episode.ID),
		logger.Int("hold_frames", m.cameraHoldFrames))
}

func (m *machine) openEpisode(now time.Time) {
	m.audioTriggered = true
	m.emergencyTrigger = false
	m.corroborating = 0
	m.cameraHoldFrames = m.cfg.CooldownFrames
	m.state = StateWarmup
	m.phase = phasePendingStart
	m.startAt = now.Add(m.cfg.WarmupDelay)
	m.episode = Episode{
		ID:         m.fx.newEpisodeID(),
		StartedAt:  now,
		AlertCount: 1,
	}

	m.metrics.RecordEpisodeStarted()
	m.sink.EpisodeChanged(m.episode)
	m.log.Info("accident sound detected, camera warming up",
		logger.String("episode_id", m.episode.ID),
		logger.Duration("warmup_delay", m.cfg.WarmupDelay))

	m.advance(now)
}

// nextDeadline returns the earliest time advance has work to do.
func (m *machine) nextDeadline() (time.Time, bool) {
	switch {
	case m.state == StateWarmup && m.phase == phasePendingStart:
		return m.startAt, true
	case m.cameraActive && !m.frameDeadline.IsZero():
		return m.frameDeadline, true
	default:
		return time.Time{}, false
	}
}

// advance applies every deadline that has passed at now.
func (m *machine) advance(now time.Time) {
	if m.state == StateWarmup && m.phase == phasePendingStart && !now.Before(m.startAt) {
		m.phase = phaseStarting
		m.log.Debug("starting camera", logger.String("episode_id", m.episode.ID))
		m.fx.startCamera()
		return
	}

	if m.cameraActive && !m.frameDeadline.IsZero() && !now.Before(m.frameDeadline) {
		msg := fmt.Sprintf("no frame received within %s", m.cfg.FrameTimeout)
		m.metrics.RecordCameraError("frame_timeout")
		m.sink.StreamError(StreamError{Stream: StreamVideo, Kind: ErrorCameraPowerFailure, Message: msg, At: now})
		m.log.Warn("camera delivered no frames, releasing it",
			logger.String("episode_id", m.episode.ID),
			logger.Duration("frame_timeout", m.cfg.FrameTimeout))
		m.endEpisode(now, OutcomeCameraFailure)
	}
}

// cameraStarted receives the result of a startCamera request.
func (m *machine) cameraStarted(now time.Time, err error) {
	if m.state != StateWarmup || m.phase != phaseStarting {
		// The episode ended while Start() was in flight.
		if err == nil {
			m.cameraActive = true
			m.releaseCamera(now)
		}
		return
	}

	if err != nil {
		m.metrics.RecordCameraError("start")
		m.sink.StreamError(StreamError{Stream: StreamVideo, Kind: ErrorCameraPowerFailure, Message: err.Error(), At: now})
		m.log.Error("camera start failed, ending episode",
			logger.String("episode_id", m.episode.ID),
			logger.Error(err))
		m.endEpisode(now, OutcomeCameraFailure)
		return
	}

	m.cameraActive = true
	m.phase = phaseAwaitingFrame
	m.frameDeadline = now.Add(m.cfg.FrameTimeout)
	m.log.Info("camera on", logger.String("episode_id", m.episode.ID))
}

// onFrame handles one analyzed camera frame.
func (m *machine) onFrame(now time.Time, f Frame) {
	if !m.cameraActive {
		m.metrics.RecordLateFrame()
		return
	}

	m.frameDeadline = now.Add(m.cfg.FrameTimeout)
	if m.state == StateWarmup {
		m.state = StateMonitoring
		m.phase = phaseNone
	}

	m.cameraHoldFrames--
	m.episode.FramesProcessed++

	var person Detection
	present := false
	if !m.videoDegraded {
		person, present = f.FirstWithLabel(m.cfg.PersonLabel)
	}

	corroborates := present && m.audioTriggered && person.Box.Lying()
	if corroborates {
		m.corroborating++
		m.episode.CorroboratingFrames++
	}

	seconds := m.accidentSeconds()
	m.metrics.RecordFrame(corroborates)
	m.metrics.SetAccidentSeconds(seconds)
	m.sink.VideoStatus(VideoStatus{PersonPresent: present, AccidentTimeSeconds: RoundSeconds(seconds)})

	if corroborates {
		m.log.Trace("posture corroborated",
			logger.String("episode_id", m.episode.ID),
			logger.Float64("accident_seconds", seconds))
	}

	if seconds > m.cfg.AccidentThreshold.Seconds() && !m.emergencyTrigger {
		m.fire(now, seconds)
	}

	if m.cameraHoldFrames <= 0 {
		m.expire(now)
	}
}

func (m *machine) fire(now time.Time, seconds float64) {
	m.emergencyTrigger = true
	m.state = StateTriggered
	m.episode.EmergencyTriggered = true
	m.episode.TriggeredAt = now
	m.episode.AccidentSeconds = seconds

	m.log.Warn("accident confirmed, triggering emergency action",
		logger.String("episode_id", m.episode.ID),
		logger.Float64("accident_seconds", seconds))

	m.fx.trigger(Incident{
		EpisodeID:           m.episode.ID,
		AccidentTimeSeconds: RoundSeconds(seconds),
		StartedAt:           m.episode.StartedAt,
		TriggeredAt:         now,
	})
	m.sink.EpisodeChanged(m.episode)
}

// expire ends the episode once the camera hold has run out.
func (m *machine) expire(now time.Time) {
	outcome := OutcomeCooldown
	if m.emergencyTrigger {
		outcome = OutcomeEmergency
	}
	m.log.Info("no recent accident sound, camera off",
		logger.String("episode_id", m.episode.ID),
		logger.Float64("accident_seconds", m.accidentSeconds()))
	m.endEpisode(now, outcome)
}

// onSource updates stream health.
func (m *machine) onSource(now time.Time, ev SourceEvent) {
	degraded := ev.State == SourceError
	switch ev.Stream {
	case StreamAudio:
		m.audioDegraded = degraded
	case StreamVideo:
		m.videoDegraded = degraded
	default:
		m.log.Warn("source event for unknown stream", logger.String("stream", string(ev.Stream)))
		return
	}

	if !degraded {
		m.log.Info("evidence source ready", logger.String("stream", string(ev.Stream)))
		return
	}

	m.metrics.RecordSourceFailure(string(ev.Stream))
	m.sink.StreamError(StreamError{Stream: ev.Stream, Kind: ErrorEvidenceSourceUnavailable, Message: ev.Message, At: now})
	m.log.Warn("evidence source unavailable, stream degraded",
		logger.String("stream", string(ev.Stream)),
		logger.String("reason", ev.Message))
}

// shutdown closes any open episode and releases the camera. No trigger can
// fire afterwards because no further events are processed.
func (m *machine) shutdown(now time.Time) {
	if m.state == StateIdle {
		return
	}
	m.endEpisode(now, OutcomeShutdown)
}

func (m *machine) endEpisode(now time.Time, outcome Outcome) {
	m.releaseCamera(now)

	m.episode.EndedAt = now
	m.episode.Outcome = outcome
	m.episode.AccidentSeconds = m.accidentSeconds()
	m.metrics.RecordEpisodeEnded(string(outcome))
	m.sink.EpisodeChanged(m.episode)

	m.state = StateIdle
	m.phase = phaseNone
	m.audioTriggered = false
	m.emergencyTrigger = false
	m.corroborating = 0
	m.cameraHoldFrames = 0
	m.startAt = time.Time{}

	m.metrics.SetAccidentSeconds(0)
	m.sink.VideoStatus(VideoStatus{})
}

func (m *machine) releaseCamera(now time.Time) {
	if !m.cameraActive {
		return
	}
	if err := m.fx.stopCamera(); err != nil {
		m.metrics.RecordCameraError("stop")
		m.sink.StreamError(StreamError{Stream: StreamVideo, Kind: ErrorCameraPowerFailure, Message: err.Error(), At: now})
		m.log.Error("camera stop failed, treating camera as off", logger.Error(err))
	}
	m.cameraActive = false
	m.frameDeadline = time.Time{}
}

func (m *machine) snapshot() Snapshot {
	snap := Snapshot{
		State:               m.state,
		StateName:           m.state.String(),
		CameraActive:        m.cameraActive,
		AccidentTimeSeconds: m.accidentSeconds(),
		AudioTriggered:      m.audioTriggered,
		EmergencyTriggered:  m.emergencyTrigger,
		CameraHoldFrames:    m.cameraHoldFrames,
		AudioDegraded:       m.audioDegraded,
		VideoDegraded:       m.videoDegraded,
	}
	if m.state != StateIdle {
		snap.EpisodeID = m.episode.ID
	}
	return snap
}

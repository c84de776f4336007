package accident

import (
	"context"
	"time"

	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

// Simulator drives the decision machine synchronously on caller supplied
// timestamps. Camera and notifier calls happen inline, so a recorded or
// scripted scenario always produces the same result.
//
// Each event first applies every deadline that passed before its timestamp,
// the same way the Coordinator's timer would have.
type Simulator struct {
	options

	ctx      context.Context
	cfg      Config
	camera   CameraPowerController
	notifier EmergencyNotifier
	m        *machine

	startRequested bool
	now            time.Time
	triggers       int
}

// NewSimulator creates a simulator. ctx bounds every camera and notifier call.
func NewSimulator(ctx context.Context, cfg Config, camera CameraPowerController, notifier EmergencyNotifier, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New(err).
			Component("accident").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if camera == nil || notifier == nil {
		return nil, errors.Newf("camera controller and emergency notifier are required").
			Component("accident").
			Category(errors.CategoryValidation).
			Build()
	}

	s := &Simulator{
		options:  buildOptions(opts),
		ctx:      ctx,
		cfg:      cfg,
		camera:   camera,
		notifier: notifier,
	}
	s.m = newMachine(cfg, s, s.sink, s.metrics, s.log)
	return s, nil
}

// Audio applies one audio tick at the given time.
func (s *Simulator) Audio(at time.Time, score AudioScore) {
	s.Advance(at)
	s.m.onAudio(at, score)
	s.settle(at)
}

// Frame applies one analyzed frame at the given time.
func (s *Simulator) Frame(at time.Time, f Frame) {
	s.Advance(at)
	s.m.onFrame(at, f)
	s.settle(at)
}

// Source applies a classifier status change at the given time.
func (s *Simulator) Source(at time.Time, ev SourceEvent) {
	s.Advance(at)
	s.m.onSource(at, ev)
	s.settle(at)
}

// Advance applies every deadline due at or before now.
func (s *Simulator) Advance(now time.Time) {
	for {
		deadline, ok := s.m.nextDeadline()
		if !ok || deadline.After(now) {
			break
		}
		s.m.advance(deadline)
		s.settle(deadline)
	}
	if now.After(s.now) {
		s.now = now
	}
}

// NextDeadline reports the next time Advance has work to do.
func (s *Simulator) NextDeadline() (time.Time, bool) {
	return s.m.nextDeadline()
}

// Close ends any open episode and releases the camera.
func (s *Simulator) Close(at time.Time) {
	s.m.shutdown(at)
}

// Snapshot returns the current state.
func (s *Simulator) Snapshot() Snapshot {
	return s.m.snapshot()
}

// Triggers returns how many emergency actions were dispatched.
func (s *Simulator) Triggers() int {
	return s.triggers
}

// settle runs a camera start requested by the last transition.
func (s *Simulator) settle(at time.Time) {
	for s.startRequested {
		s.startRequested = false
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.StartTimeout)
		err := s.camera.Start(ctx)
		cancel()
		s.m.cameraStarted(at, err)
	}
}

func (s *Simulator) startCamera() {
	s.startRequested = true
}

func (s *Simulator) stopCamera() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.StopTimeout)
	defer cancel()
	return s.camera.Stop(ctx)
}

func (s *Simulator) trigger(incident Incident) {
	s.triggers++
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.NotifyTimeout)
	defer cancel()

	err := s.notifier.Trigger(ctx, incident)
	s.metrics.RecordTrigger(err)
	if err != nil {
		s.log.Error("emergency action failed, not retrying",
			logger.String("episode_id", incident.EpisodeID),
			logger.Error(err))
		s.sink.StreamError(StreamError{
			Stream:  StreamNotifier,
			Kind:    ErrorNotifierFailure,
			Message: err.Error(),
			At:      s.now,
		})
	}
}

func (s *Simulator) newEpisodeID() string {
	return s.newID()
}

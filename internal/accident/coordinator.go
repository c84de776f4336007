package accident

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

const sourceQueueSize = 16

// GetLogger returns the accident package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("accident")
}

// Coordinator owns the decision state machine and serializes all evidence
// into it from a single goroutine.
type Coordinator struct {
	options

	cfg      Config
	camera   CameraPowerController
	notifier EmergencyNotifier

	audio   chan AudioScore
	sources chan SourceEvent
	frames  *frameSlot
	started chan error

	m       *machine
	snap    atomic.Pointer[Snapshot]
	running atomic.Bool

	startWG   sync.WaitGroup
	triggerWG sync.WaitGroup
}

type options struct {
	sink    StatusSink
	metrics Metrics
	log     logger.Logger
	clock   func() time.Time
	newID   func() string
}

func buildOptions(opts []Option) options {
	o := options{
		sink:    nopSink{},
		metrics: nopMetrics{},
		log:     GetLogger(),
		clock:   time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Coordinator or Simulator
type Option func(*options)

// WithStatusSink sets the receiver of status output.
func WithStatusSink(sink StatusSink) Option {
	return func(c *options) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(c *options) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(c *options) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(c *options) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithIDGenerator overrides the episode ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(c *options) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// NewCoordinator creates a coordinator. Run must be called to start processing.
func NewCoordinator(cfg Config, camera CameraPowerController, notifier EmergencyNotifier, opts ...Option) (*Coordinator, error) {
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

	c := &Coordinator{
		options:  buildOptions(opts),
		cfg:      cfg,
		camera:   camera,
		notifier: notifier,
		audio:    make(chan AudioScore, cfg.AudioQueueSize),
		sources:  make(chan SourceEvent, sourceQueueSize),
		frames:   newFrameSlot(),
		started:  make(chan error, 1),
	}

	c.m = newMachine(cfg, c, c.sink, c.metrics, c.log)
	c.publish()
	return c, nil
}

// SubmitAudio queues an audio score. It never blocks; a full queue drops the
// score and returns false.
func (c *Coordinator) SubmitAudio(s AudioScore) bool {
	select {
	case c.audio <- s:
		return true
	default:
		c.metrics.RecordAudioDropped()
		c.log.Warn("audio queue full, dropping score", logger.Float64("score", s.Score))
		return false
	}
}

// SubmitFrame hands a frame to the coordinator, replacing any frame not yet
// processed. It never blocks.
func (c *Coordinator) SubmitFrame(f Frame) {
	if c.frames.put(f) {
		c.metrics.RecordFramesDropped(1)
	}
}

// ReportSource records a classifier coming up or failing. It never blocks.
func (c *Coordinator) ReportSource(ev SourceEvent) {
	select {
	case c.sources <- ev:
	default:
		c.log.Warn("source event queue full, dropping event",
			logger.String("stream", string(ev.Stream)),
			logger.String("state", string(ev.State)))
	}
}

// Snapshot returns the state after the most recently processed event.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Config returns the decision parameters in use.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Run processes evidence until ctx is cancelled. On return the camera has been
// released, any open episode is closed and in-flight notifications have finished.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.Newf("coordinator is already running").
			Component("accident").
			Category(errors.CategoryState).
			Build()
	}

	c.log.Info("accident coordinator started",
		logger.Float64("audio_threshold", c.cfg.AudioThreshold),
		logger.Int("cooldown_frames", c.cfg.CooldownFrames),
		logger.Duration("accident_threshold", c.cfg.AccidentThreshold))

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			c.shutdown()
			return nil
		}

		c.publish()
		timerC := c.armTimer(timer)

		select {
		case <-ctx.Done():
			c.shutdown()
			return nil

		case s := <-c.audio:
			c.m.onAudio(c.clock(), s)

		case ev := <-c.sources:
			c.m.onSource(c.clock(), ev)

		case err := <-c.started:
			c.m.cameraStarted(c.clock(), err)

		case <-c.frames.ready:
			// Pending alerts are applied first so a refresh wins over expiry.
			c.drainAudio()
			if ctx.Err() != nil {
				continue
			}
			if f, ok := c.frames.take(); ok {
				c.m.onFrame(c.clock(), f)
			}

		case <-timerC:
			c.m.advance(c.clock())
		}
	}
}

func (c *Coordinator) armTimer(timer *time.Timer) <-chan time.Time {
	deadline, ok := c.m.nextDeadline()
	if !ok {
		timer.Stop()
		return nil
	}
	timer.Reset(max(deadline.Sub(c.clock()), 0))
	return timer.C
}

func (c *Coordinator) drainAudio() {
	for {
		select {
		case s := <-c.audio:
			c.m.onAudio(c.clock(), s)
		default:
			return
		}
	}
}

func (c *Coordinator) shutdown() {
	c.frames.close()

	// Let an in-flight Start() finish so the camera is not left on.
	c.startWG.Wait()
	select {
	case err := <-c.started:
		c.m.cameraStarted(c.clock(), err)
	default:
	}

	c.m.shutdown(c.clock())

	discarded := 0
drain:
	for {
		select {
		case <-c.audio:
			discarded++
		case <-c.sources:
		default:
			break drain
		}
	}

	c.triggerWG.Wait()
	c.publish()

	_, frameDrops := c.frames.drops()
	c.log.Info("accident coordinator stopped",
		logger.Int("discarded_audio", discarded),
		logger.Uint64("dropped_frames", frameDrops))
}

func (c *Coordinator) publish() {
	snap := c.m.snapshot()
	c.snap.Store(&snap)
	c.metrics.SetState(snap.StateName)
	c.metrics.SetCameraActive(snap.CameraActive)
}

// effects implementation

func (c *Coordinator) newEpisodeID() string {
	return c.newID()
}

func (c *Coordinator) startCamera() {
	c.startWG.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StartTimeout)
		defer cancel()

		err := c.camera.Start(ctx)
		if err != nil {
			err = errors.New(err).
				Component("accident").
				Category(errors.CategoryCameraPower).
				Context("operation", "start").
				Build()
		}
		c.started <- err
	})
}

func (c *Coordinator) stopCamera() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
	defer cancel()

	if err := c.camera.Stop(ctx); err != nil {
		return errors.New(err).
			Component("accident").
			Category(errors.CategoryCameraPower).
			Context("operation", "stop").
			Build()
	}
	return nil
}

func (c *Coordinator) trigger(incident Incident) {
	c.triggerWG.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.NotifyTimeout)
		defer cancel()

		err := c.notifier.Trigger(ctx, incident)
		c.metrics.RecordTrigger(err)
		if err == nil {
			c.log.Info("emergency action dispatched", logger.String("episode_id", incident.EpisodeID))
			return
		}

		err = errors.New(err).
			Component("accident").
			Category(errors.CategoryNotifier).
			Priority(errors.PriorityCritical).
			Context("episode_id", incident.EpisodeID).
			Build()
		c.log.Error("emergency action failed, not retrying",
			logger.String("episode_id", incident.EpisodeID),
			logger.Error(err))
		c.sink.StreamError(StreamError{
			Stream:  StreamNotifier,
			Kind:    ErrorNotifierFailure,
			Message: err.Error(),
			At:      c.clock(),
		})
	})
}

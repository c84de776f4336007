package analysis

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/camera"
	"github.com/tphakala/fallguard/internal/evidence"
	"github.com/tphakala/fallguard/internal/logger"
)

// SimulationResult summarizes one scenario replay.
type SimulationResult struct {
	Scenario  string                 `json:"scenario"`
	Duration  time.Duration          `json:"duration"`
	Triggers  int                    `json:"triggers"`
	Incidents []accident.Incident    `json:"incidents"`
	Episodes  []accident.Episode     `json:"episodes"`
	Errors    []accident.StreamError `json:"errors,omitempty"`
	Final     accident.Snapshot      `json:"final"`
}

// SimulationOptions tunes a replay. A nil Notifier only records incidents.
type SimulationOptions struct {
	Start    time.Time
	Notifier accident.EmergencyNotifier
	Logger   logger.Logger
}

// Simulate replays sc through the decision machine on a virtual clock. The
// camera is simulated; the notifier in opts, if any, is really called.
func Simulate(ctx context.Context, cfg accident.Config, sc *evidence.Scenario, opts SimulationOptions) (*SimulationResult, error) {
	if opts.Start.IsZero() {
		opts.Start = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if sc.FrameRate > 0 && sc.FrameRate != cfg.FrameRate {
		// keep the cool-down duration, not its frame count
		cooldown := float64(cfg.CooldownFrames) / float64(cfg.FrameRate)
		cfg.FrameRate = sc.FrameRate
		cfg.CooldownFrames = max(1, int(cooldown*float64(sc.FrameRate)+0.5))
	}

	rec := &recordingSink{}
	notifier := &recordingNotifier{next: opts.Notifier}
	simOpts := []accident.Option{accident.WithStatusSink(rec)}
	if opts.Logger != nil {
		simOpts = append(simOpts, accident.WithLogger(opts.Logger))
	}

	sim, err := accident.NewSimulator(ctx, cfg, camera.NewNopController(), notifier, simOpts...)
	if err != nil {
		return nil, err
	}

	end := sc.Replay(sim, opts.Start)
	sim.Close(end)

	return &SimulationResult{
		Scenario:  sc.Name,
		Duration:  end.Sub(opts.Start),
		Triggers:  sim.Triggers(),
		Incidents: notifier.incidents,
		Episodes:  rec.episodes,
		Errors:    rec.errors,
		Final:     sim.Snapshot(),
	}, nil
}

// recordingSink keeps the latest version of every episode and all errors.
type recordingSink struct {
	mu       sync.Mutex
	episodes []accident.Episode
	errors   []accident.StreamError
}

func (r *recordingSink) VideoStatus(accident.VideoStatus) {}
func (r *recordingSink) AudioStatus(accident.AudioStatus) {}

func (r *recordingSink) StreamError(e accident.StreamError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, e)
}

func (r *recordingSink) EpisodeChanged(e accident.Episode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.episodes, func(x accident.Episode) bool { return x.ID == e.ID })
	if i < 0 {
		r.episodes = append(r.episodes, e)
		return
	}
	r.episodes[i] = e
}

type recordingNotifier struct {
	mu        sync.Mutex
	incidents []accident.Incident
	next      accident.EmergencyNotifier
}

func (n *recordingNotifier) Trigger(ctx context.Context, incident accident.Incident) error {
	n.mu.Lock()
	n.incidents = append(n.incidents, incident)
	n.mu.Unlock()
	if n.next == nil {
		return nil
	}
	return n.next.Trigger(ctx, incident)
}

package evidence

import (
	"cmp"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/errors"
)

// Scenario is a scripted recording of both evidence streams. Audio ticks
// start at offset zero, frames at FrameOffset; both streams are merged by
// timestamp during replay.
//
//	name: fall in the hallway
//	framerate: 30
//	audiointerval: 100ms
//	audio: [0, 0, 0.9, 0]
//	frameoffset: 1s
//	frames:
//	  - repeat: 400
//	    detections:
//	      - label: person
//	        box: {left: 0, top: 0, right: 200, bottom: 80}
//	tail: 25s
type Scenario struct {
	Name          string        `yaml:"name"`
	FrameRate     int           `yaml:"framerate"`
	AudioInterval time.Duration `yaml:"audiointerval"`
	Audio         []AudioStep   `yaml:"audio"`
	FrameOffset   time.Duration `yaml:"frameoffset"`
	Frames        []FrameStep   `yaml:"frames"`
	Sources       []SourceStep  `yaml:"sources"`
	Tail          time.Duration `yaml:"tail"` // time advanced after the last event
}

// AudioStep is one or more identical audio ticks. In YAML it is either a
// bare score or {score, repeat}.
type AudioStep struct {
	Score  float64 `yaml:"score"`
	Repeat int     `yaml:"repeat"`
}

// UnmarshalYAML accepts the bare score shorthand.
func (a *AudioStep) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		a.Repeat = 1
		return value.Decode(&a.Score)
	}
	type plain AudioStep
	return value.Decode((*plain)(a))
}

// FrameStep is one or more identical frames.
type FrameStep struct {
	Repeat     int                  `yaml:"repeat"`
	Detections []accident.Detection `yaml:"detections"`
}

// SourceStep reports a classifier status change at an offset.
type SourceStep struct {
	At      time.Duration        `yaml:"at"`
	Stream  accident.Stream      `yaml:"stream"`
	State   accident.SourceState `yaml:"state"`
	Message string               `yaml:"message"`
}

// Driver applies timestamped evidence. *accident.Simulator implements it.
type Driver interface {
	Audio(at time.Time, score accident.AudioScore)
	Frame(at time.Time, f accident.Frame)
	Source(at time.Time, ev accident.SourceEvent)
	Advance(now time.Time)
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("evidence").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return ParseScenario(data)
}

// ParseScenario decodes a YAML scenario and fills defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.New(err).
			Component("evidence").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if s.FrameRate == 0 {
		s.FrameRate = accident.DefaultFrameRate
	}
	if s.AudioInterval == 0 {
		s.AudioInterval = 100 * time.Millisecond
	}
	if s.FrameOffset == 0 {
		s.FrameOffset = time.Second
	}
	for i := range s.Audio {
		if s.Audio[i].Repeat == 0 {
			s.Audio[i].Repeat = 1
		}
	}
	for i := range s.Frames {
		if s.Frames[i].Repeat == 0 {
			s.Frames[i].Repeat = 1
		}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	var problems []error
	if s.FrameRate < 0 {
		problems = append(problems, errors.NewStd("framerate must be positive"))
	}
	if s.AudioInterval < 0 || s.FrameOffset < 0 || s.Tail < 0 {
		problems = append(problems, errors.NewStd("durations cannot be negative"))
	}
	for _, a := range s.Audio {
		if a.Score < 0 || a.Score > 1 || a.Repeat < 0 {
			problems = append(problems, errors.NewStd("audio scores must be within [0,1] with a non-negative repeat"))
			break
		}
	}
	for _, f := range s.Frames {
		if f.Repeat < 0 {
			problems = append(problems, errors.NewStd("frame repeat cannot be negative"))
			break
		}
	}
	for _, src := range s.Sources {
		if (src.Stream != accident.StreamAudio && src.Stream != accident.StreamVideo) ||
			(src.State != accident.SourceReady && src.State != accident.SourceError) {
			problems = append(problems, errors.NewStd("sources need stream audio|video and state ready|error"))
			break
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(errors.Join(problems...)).
		Component("evidence").
		Category(errors.CategoryValidation).
		Build()
}

type replayKind int

// Order of simultaneous events: status first, then audio, then video. This
// matches the run loop, which drains audio before taking a frame.
const (
	replaySource replayKind = iota
	replayAudio
	replayFrame
)

type replayEvent struct {
	offset time.Duration
	kind   replayKind
	seq    int
	audio  float64
	frame  []accident.Detection
	source accident.SourceEvent
}

// Replay feeds the scenario to d starting at start and returns the time of
// the final Advance.
func (s *Scenario) Replay(d Driver, start time.Time) time.Time {
	events := s.timeline()
	var last time.Duration
	for _, ev := range events {
		at := start.Add(ev.offset)
		switch ev.kind {
		case replaySource:
			d.Source(at, ev.source)
		case replayAudio:
			d.Audio(at, accident.AudioScore{Score: ev.audio, At: at})
		case replayFrame:
			d.Frame(at, accident.Frame{Detections: ev.frame, At: at})
		}
		last = ev.offset
	}
	end := start.Add(last + s.Tail)
	d.Advance(end)
	return end
}

// Duration is the offset of the last event plus the tail.
func (s *Scenario) Duration() time.Duration {
	events := s.timeline()
	if len(events) == 0 {
		return s.Tail
	}
	return events[len(events)-1].offset + s.Tail
}

func (s *Scenario) timeline() []replayEvent {
	var events []replayEvent
	seq := 0

	tick := 0
	for _, step := range s.Audio {
		for range step.Repeat {
			events = append(events, replayEvent{
				offset: time.Duration(tick) * s.AudioInterval,
				kind:   replayAudio,
				seq:    seq,
				audio:  step.Score,
			})
			tick++
			seq++
		}
	}

	frameInterval := time.Second / time.Duration(s.FrameRate)
	n := 0
	for _, step := range s.Frames {
		for range step.Repeat {
			events = append(events, replayEvent{
				offset: s.FrameOffset + time.Duration(n)*frameInterval,
				kind:   replayFrame,
				seq:    seq,
				frame:  step.Detections,
			})
			n++
			seq++
		}
	}

	for _, src := range s.Sources {
		events = append(events, replayEvent{
			offset: src.At,
			kind:   replaySource,
			seq:    seq,
			source: accident.SourceEvent{Stream: src.Stream, State: src.State, Message: src.Message},
		})
		seq++
	}

	slices.SortFunc(events, func(a, b replayEvent) int {
		return cmp.Or(
			cmp.Compare(a.offset, b.offset),
			cmp.Compare(a.kind, b.kind),
			cmp.Compare(a.seq, b.seq),
		)
	})
	return events
}

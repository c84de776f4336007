package evidence

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/errors"
)

// Rejection reasons used as metric labels
const (
	ReasonMalformed = "malformed"
	ReasonInvalid   = "invalid"
	ReasonDropped   = "queue_full"
)

type audioPayload struct {
	Score     *float64  `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

type framePayload struct {
	Detections []accident.Detection `json:"detections"`
	Timestamp  time.Time            `json:"timestamp"`
}

type sourcePayload struct {
	Stream  string `json:"stream"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// DecodeAudio parses {"score": 0.91, "timestamp": "..."}. A missing
// timestamp is replaced by now.
func DecodeAudio(data []byte, now time.Time) (accident.AudioScore, error) {
	var p audioPayload
	if err := decodeStrict(data, &p); err != nil {
		return accident.AudioScore{}, decodeError(err, accident.StreamAudio, ReasonMalformed)
	}
	if p.Score == nil {
		return accident.AudioScore{}, invalid(accident.StreamAudio, "score is required")
	}
	if s := *p.Score; math.IsNaN(s) || s < 0 || s > 1 {
		return accident.AudioScore{}, invalid(accident.StreamAudio, "score must be within [0,1]")
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
	return accident.AudioScore{Score: *p.Score, At: p.Timestamp}, nil
}

// DecodeFrame parses one analyzed frame. An empty detection list is a valid
// frame with nobody in view. Labels are kept as sent; only an exact
// "person" label is inspected by the coordinator.
func DecodeFrame(data []byte, now time.Time) (accident.Frame, error) {
	var p framePayload
	if err := decodeStrict(data, &p); err != nil {
		return accident.Frame{}, decodeError(err, accident.StreamVideo, ReasonMalformed)
	}
	for i := range p.Detections {
		d := &p.Detections[i]
		if !finite(d.Score, d.Box.Left, d.Box.Top, d.Box.Right, d.Box.Bottom) {
			return accident.Frame{}, invalid(accident.StreamVideo, "detection values must be finite")
		}
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
	return accident.Frame{Detections: p.Detections, At: p.Timestamp}, nil
}

// DecodeSource parses a classifier status report.
func DecodeSource(data []byte) (accident.SourceEvent, error) {
	var p sourcePayload
	if err := decodeStrict(data, &p); err != nil {
		return accident.SourceEvent{}, decodeError(err, "status", ReasonMalformed)
	}
	ev := accident.SourceEvent{
		Stream:  accident.Stream(strings.ToLower(p.Stream)),
		State:   accident.SourceState(strings.ToLower(p.State)),
		Message: p.Message,
	}
	if ev.Stream != accident.StreamAudio && ev.Stream != accident.StreamVideo {
		return accident.SourceEvent{}, invalid("status", "stream must be audio or video")
	}
	if ev.State != accident.SourceReady && ev.State != accident.SourceError {
		return accident.SourceEvent{}, invalid("status", "state must be ready or error")
	}
	return ev, nil
}

// RejectionReason returns the metric label for a decode error.
func RejectionReason(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		if reason, ok := ee.GetContext()["reason"].(string); ok {
			return reason
		}
	}
	return ReasonMalformed
}

// decodeStrict decodes exactly one JSON value into v. Unknown fields and
// trailing data are errors.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.NewStd("unexpected data after JSON value")
	}
	return nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func decodeError(err error, stream accident.Stream, reason string) error {
	return errors.New(err).
		Component("evidence").
		Category(errors.CategoryValidation).
		Context("stream", string(stream)).
		Context("reason", reason).
		Build()
}

func invalid(stream accident.Stream, msg string) error {
	return errors.Newf("%s evidence: %s", stream, msg).
		Component("evidence").
		Category(errors.CategoryValidation).
		Context("stream", string(stream)).
		Context("reason", ReasonInvalid).
		Build()
}

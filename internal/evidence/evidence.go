// Package evidence turns classifier output arriving over the wire into
// coordinator input. It holds the JSON decoders shared by the MQTT and HTTP
// ingestion paths, the MQTT subscriber and the YAML scenario replay.
package evidence

import (
	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/logger"
)

// Sink accepts evidence. *accident.Coordinator implements it.
type Sink interface {
	SubmitAudio(accident.AudioScore) bool
	SubmitFrame(accident.Frame)
	ReportSource(accident.SourceEvent)
}

// RejectionRecorder counts evidence that could not be decoded.
type RejectionRecorder interface {
	RecordEvidenceRejected(stream, reason string)
}

type nopRejections struct{}

func (nopRejections) RecordEvidenceRejected(string, string) {}

// GetLogger returns the evidence package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("evidence")
}

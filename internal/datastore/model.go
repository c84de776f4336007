package datastore

import (
	"time"

	"github.com/tphakala/fallguard/internal/accident"
)

// EpisodeRecord is the persisted form of accident.Episode.
type EpisodeRecord struct {
	ID                 string    `gorm:"primaryKey;size:36"`
	StartedAt          time.Time `gorm:"index"`
	EmergencyTriggered bool      `gorm:"index"`
	Outcome            string    `gorm:"size:32;index"`

	EndedAt             *time.Time
	TriggeredAt         *time.Time
	AccidentSeconds     float64
	AlertCount          int
	FramesProcessed     int
	CorroboratingFrames int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName overrides the GORM default
func (EpisodeRecord) TableName() string { return "episodes" }

func recordFromEpisode(e *accident.Episode) EpisodeRecord {
	return EpisodeRecord{
		ID:                  e.ID,
		StartedAt:           e.StartedAt,
		EndedAt:             timePtr(e.EndedAt),
		TriggeredAt:         timePtr(e.TriggeredAt),
		AccidentSeconds:     e.AccidentSeconds,
		EmergencyTriggered:  e.EmergencyTriggered,
		Outcome:             string(e.Outcome),
		AlertCount:          e.AlertCount,
		FramesProcessed:     e.FramesProcessed,
		CorroboratingFrames: e.CorroboratingFrames,
	}
}

// Episode converts the record back.
func (r *EpisodeRecord) Episode() accident.Episode {
	e := accident.Episode{
		ID:                  r.ID,
		StartedAt:           r.StartedAt,
		AccidentSeconds:     r.AccidentSeconds,
		EmergencyTriggered:  r.EmergencyTriggered,
		Outcome:             accident.Outcome(r.Outcome),
		AlertCount:          r.AlertCount,
		FramesProcessed:     r.FramesProcessed,
		CorroboratingFrames: r.CorroboratingFrames,
	}
	if r.EndedAt != nil {
		e.EndedAt = *r.EndedAt
	}
	if r.TriggeredAt != nil {
		e.TriggeredAt = *r.TriggeredAt
	}
	return e
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

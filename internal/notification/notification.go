// Package notification delivers the emergency action. A Service fans one
// incident out to every configured provider: shoutrrr service URLs, a JSON
// webhook and a local dial script.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/logger"
)

// Provider defines a delivery backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Notification is the message built from an incident.
type Notification struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Message             string    `json:"message"`
	PhoneNumber         string    `json:"phoneNumber,omitempty"`
	EpisodeID           string    `json:"episodeId"`
	AccidentTimeSeconds float64   `json:"accidentTimeSeconds"`
	StartedAt           time.Time `json:"startedAt"`
	TriggeredAt         time.Time `json:"triggeredAt"`
	Test                bool      `json:"test,omitempty"`
}

// GetLogger returns the notification package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}

func formatMessage(incident accident.Incident, phone string) string {
	msg := fmt.Sprintf("Possible accident detected: a person has been lying down for %.2f s since %s.",
		accident.RoundSeconds(incident.AccidentTimeSeconds),
		incident.StartedAt.Local().Format(time.TimeOnly))
	if phone != "" {
		msg += " Calling " + phone + "."
	}
	return msg
}

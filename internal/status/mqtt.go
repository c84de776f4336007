package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/fallguard/internal/events"
	"github.com/tphakala/fallguard/internal/logger"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of the MQTT client used for status output.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
}

// MQTTPublisher republishes status events as JSON below prefix:
// <prefix>/status/video, <prefix>/status/audio, <prefix>/status/error and
// <prefix>/episode.
type MQTTPublisher struct {
	client Publisher
	prefix string
	log    logger.Logger
}

// NewMQTTPublisher creates the consumer
func NewMQTTPublisher(client Publisher, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, log: logger.Global().Module("status")}
}

func (p *MQTTPublisher) Name() string { return "mqtt-status" }

// Topic returns the topic an event of kind is published on.
func (p *MQTTPublisher) Topic(kind events.Kind) string {
	if kind == events.KindEpisode {
		return p.prefix + "/episode"
	}
	return p.prefix + "/status/" + string(kind)
}

// ProcessEvent publishes the event. Updates are skipped while disconnected;
// the retained topics catch up with the next update.
func (p *MQTTPublisher) ProcessEvent(e events.Event) error {
	if !p.client.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(e.Payload())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return p.client.Publish(ctx, p.Topic(e.Kind), payload)
}

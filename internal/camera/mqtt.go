package camera

import (
	"context"

	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

// Publisher is the part of the MQTT client the controller needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTController switches the camera through a smart plug or relay that
// listens on an MQTT command topic.
type MQTTController struct {
	publisher Publisher
	topic     string
	on        []byte
	off       []byte
	log       logger.Logger
}

// NewMQTTController returns a controller publishing onPayload and offPayload
// to topic. Empty payloads default to "ON" and "OFF".
func NewMQTTController(publisher Publisher, topic, onPayload, offPayload string) (*MQTTController, error) {
	if topic == "" {
		return nil, errors.Newf("camera MQTT topic is required").
			Component("camera").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if onPayload == "" {
		onPayload = "ON"
	}
	if offPayload == "" {
		offPayload = "OFF"
	}
	return &MQTTController{
		publisher: publisher,
		topic:     topic,
		on:        []byte(onPayload),
		off:       []byte(offPayload),
		log:       GetLogger(),
	}, nil
}

// Start publishes the on payload. Repeating it is harmless for a retained
// relay state so no local state is kept.
func (m *MQTTController) Start(ctx context.Context) error {
	return m.publish(ctx, "start", m.on)
}

// Stop publishes the off payload.
func (m *MQTTController) Stop(ctx context.Context) error {
	return m.publish(ctx, "stop", m.off)
}

func (m *MQTTController) publish(ctx context.Context, operation string, payload []byte) error {
	if err := m.publisher.Publish(ctx, m.topic, payload); err != nil {
		return errors.New(err).
			Component("camera").
			Category(errors.CategoryCameraPower).
			Context("operation", operation).
			Context("topic", m.topic).
			Build()
	}
	m.log.Debug("camera power command published",
		logger.String("operation", operation),
		logger.String("topic", m.topic))
	return nil
}

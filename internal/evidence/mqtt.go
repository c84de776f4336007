package evidence

import (
	"context"
	"time"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
	"github.com/tphakala/fallguard/internal/mqtt"
)

// Subscriber is the part of the MQTT client the source needs.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler mqtt.MessageHandler) error
}

// MQTTSource feeds classifier output published on MQTT into a Sink.
type MQTTSource struct {
	sub        Subscriber
	topics     conf.EvidenceMQTTSettings
	sink       Sink
	rejections RejectionRecorder
	clock      func() time.Time
	log        logger.Logger
}

// NewMQTTSource creates a source. rejections may be nil.
func NewMQTTSource(sub Subscriber, topics conf.EvidenceMQTTSettings, sink Sink, rejections RejectionRecorder) (*MQTTSource, error) {
	if topics.AudioTopic == "" || topics.VideoTopic == "" {
		return nil, errors.Newf("audio and video evidence topics are required").
			Component("evidence").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if rejections == nil {
		rejections = nopRejections{}
	}
	return &MQTTSource{
		sub:        sub,
		topics:     topics,
		sink:       sink,
		rejections: rejections,
		clock:      time.Now,
		log:        GetLogger(),
	}, nil
}

// Start subscribes to the evidence topics. Subscriptions made before the
// client connects are applied once it does.
func (s *MQTTSource) Start(ctx context.Context) error {
	handlers := map[string]mqtt.MessageHandler{
		s.topics.AudioTopic: s.handleAudio,
		s.topics.VideoTopic: s.handleVideo,
	}
	if s.topics.StatusTopic != "" {
		handlers[s.topics.StatusTopic] = s.handleStatus
	}
	for topic, handler := range handlers {
		if err := s.sub.Subscribe(ctx, topic, handler); err != nil {
			return err
		}
	}
	s.log.Info("listening for evidence on MQTT",
		logger.String("audio_topic", s.topics.AudioTopic),
		logger.String("video_topic", s.topics.VideoTopic),
		logger.String("status_topic", s.topics.StatusTopic))
	return nil
}

func (s *MQTTSource) handleAudio(topic string, payload []byte) {
	score, err := DecodeAudio(payload, s.clock())
	if err != nil {
		s.reject(accident.StreamAudio, topic, err)
		return
	}
	if !s.sink.SubmitAudio(score) {
		s.rejections.RecordEvidenceRejected(string(accident.StreamAudio), ReasonDropped)
	}
}

func (s *MQTTSource) handleVideo(topic string, payload []byte) {
	frame, err := DecodeFrame(payload, s.clock())
	if err != nil {
		s.reject(accident.StreamVideo, topic, err)
		return
	}
	s.sink.SubmitFrame(frame)
}

func (s *MQTTSource) handleStatus(topic string, payload []byte) {
	ev, err := DecodeSource(payload)
	if err != nil {
		s.reject("status", topic, err)
		return
	}
	s.sink.ReportSource(ev)
}

func (s *MQTTSource) reject(stream accident.Stream, topic string, err error) {
	s.rejections.RecordEvidenceRejected(string(stream), RejectionReason(err))
	s.log.Debug("rejected evidence message",
		logger.String("topic", topic),
		logger.Error(err))
}

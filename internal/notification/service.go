package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

// DefaultTitle is used when notification.title is empty
const DefaultTitle = "Fall detected"

// ErrNoProviders is returned by Trigger when nothing is configured to deliver
// the emergency action.
var ErrNoProviders = errors.Newf("no notification provider configured").
	Component("notification").
	Category(errors.CategoryNotifier).
	Build()

// DeliveryRecorder receives per provider delivery results.
type DeliveryRecorder interface {
	RecordDelivery(provider, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordDelivery(string, string, time.Duration) {}

// Service implements accident.EmergencyNotifier.
type Service struct {
	providers []Provider
	title     string
	phone     string
	metrics   DeliveryRecorder
	log       logger.Logger
}

// NewService creates a service sending to providers. metrics may be nil.
func NewService(providers []Provider, title, phone string, metrics DeliveryRecorder) *Service {
	if title == "" {
		title = DefaultTitle
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		providers: providers,
		title:     title,
		phone:     phone,
		metrics:   metrics,
		log:       GetLogger(),
	}
}

// NewServiceFromSettings builds every enabled provider.
func NewServiceFromSettings(settings *conf.NotificationSettings, metrics DeliveryRecorder) (*Service, error) {
	var providers []Provider

	if settings.Shoutrrr.Enabled {
		p, err := NewShoutrrrProvider(settings.Shoutrrr.URLs, 0)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if settings.Webhook.Enabled {
		p, err := NewWebhookProvider(settings.Webhook.URL, settings.Webhook.Headers, nil)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if settings.Script.Enabled {
		p, err := NewScriptProvider(settings.Script.Path, settings.Script.Args)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	return NewService(providers, settings.Title, settings.PhoneNumber, metrics), nil
}

// Providers returns the provider names in delivery order.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// Trigger sends the incident to all providers in parallel. It fails only when
// no provider delivered it; partial failures are logged and counted.
func (s *Service) Trigger(ctx context.Context, incident accident.Incident) error {
	return s.send(ctx, s.build(incident, false))
}

// SendTest delivers a clearly marked test message through every provider.
func (s *Service) SendTest(ctx context.Context) error {
	now := time.Now()
	n := s.build(accident.Incident{EpisodeID: "test", StartedAt: now, TriggeredAt: now}, true)
	n.Title = "[TEST] " + n.Title
	n.Message = "Test of the fallguard emergency notification. No action is required."
	return s.send(ctx, n)
}

func (s *Service) build(incident accident.Incident, test bool) *Notification {
	return &Notification{
		ID:                  uuid.NewString(),
		Title:               s.title,
		Message:             formatMessage(incident, s.phone),
		PhoneNumber:         s.phone,
		EpisodeID:           incident.EpisodeID,
		AccidentTimeSeconds: accident.RoundSeconds(incident.AccidentTimeSeconds),
		StartedAt:           incident.StartedAt,
		TriggeredAt:         incident.TriggeredAt,
		Test:                test,
	}
}

func (s *Service) send(ctx context.Context, n *Notification) error {
	if len(s.providers) == 0 {
		s.log.Error("emergency notification not delivered",
			logger.String("episode_id", n.EpisodeID),
			logger.Error(ErrNoProviders))
		return ErrNoProviders
	}

	errs := make([]error, len(s.providers))
	var wg sync.WaitGroup
	for i, p := range s.providers {
		wg.Go(func() {
			begin := time.Now()
			err := p.Send(ctx, n)
			status := "success"
			if err != nil {
				status = "error"
				errs[i] = err
			}
			s.metrics.RecordDelivery(p.Name(), status, time.Since(begin))
		})
	}
	wg.Wait()

	delivered := 0
	for i, err := range errs {
		if err == nil {
			delivered++
			continue
		}
		s.log.Warn("notification provider failed",
			logger.String("provider", s.providers[i].Name()),
			logger.String("notification_id", n.ID),
			logger.Error(err))
	}
	if delivered > 0 {
		s.log.Info("emergency notification delivered",
			logger.String("episode_id", n.EpisodeID),
			logger.Int("providers", delivered),
			logger.Bool("test", n.Test))
		return nil
	}
	return errors.New(errors.Join(errs...)).
		Component("notification").
		Category(errors.CategoryNotifier).
		Context("episode_id", n.EpisodeID).
		Build()
}

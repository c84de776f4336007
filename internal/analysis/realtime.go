// Package analysis assembles the accident coordinator with its evidence
// sources, outputs and HTTP API, and replays recorded scenarios offline.
package analysis

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/api"
	"github.com/tphakala/fallguard/internal/camera"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/datastore"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/events"
	"github.com/tphakala/fallguard/internal/evidence"
	"github.com/tphakala/fallguard/internal/logger"
	"github.com/tphakala/fallguard/internal/mqtt"
	"github.com/tphakala/fallguard/internal/notification"
	"github.com/tphakala/fallguard/internal/observability"
	"github.com/tphakala/fallguard/internal/status"
)

const busShutdownTimeout = 5 * time.Second

// GetLogger returns the analysis package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// RealtimeAnalysis runs the coordinator until ctx is cancelled. On return the
// camera is off, the last episode is recorded and all connections are closed.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings) error {
	log := GetLogger()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	var ds datastore.Interface
	store, err := datastore.New(&settings.Output, m.Datastore)
	if err != nil {
		return err
	}
	if store != nil {
		ds = store
		defer closeDataStore(store)
	}

	var mqttClient mqtt.Client
	if settings.MQTT.Enabled {
		mqttClient, err = mqtt.NewClient(settings, m.MQTT)
		if err != nil {
			return err
		}
		if err := mqttClient.Connect(ctx); err != nil {
			// paho keeps retrying in the background
			log.Warn("MQTT broker not reachable at startup",
				logger.String("broker", settings.MQTT.Broker),
				logger.Error(err))
		}
		defer mqttClient.Disconnect()
	}

	var cameraPublisher camera.Publisher
	if mqttClient != nil {
		cameraPublisher = mqttClient
	}
	cam, err := camera.New(&settings.Camera, cameraPublisher)
	if err != nil {
		return err
	}

	notifier, err := notification.NewServiceFromSettings(&settings.Notification, m.Notification)
	if err != nil {
		return err
	}
	if len(notifier.Providers()) == 0 {
		log.Warn("no notification provider enabled, emergencies will only be logged")
	}

	bus, hub, err := startEventBus(mqttClient, ds)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Shutdown(busShutdownTimeout); err != nil {
			log.Warn("event bus shutdown incomplete", logger.Error(err))
		}
	}()

	coord, err := accident.NewCoordinator(settings.DetectorConfig(), cam, notifier,
		accident.WithStatusSink(events.NewStatusSink(bus)),
		accident.WithMetrics(m.Accident))
	if err != nil {
		return err
	}

	log.Info("starting fallguard",
		logger.String("version", settings.Version),
		logger.String("evidence_source", settings.Evidence.Source),
		logger.String("camera_controller", settings.Camera.Controller),
		logger.Any("notification_providers", notifier.Providers()))

	if settings.Evidence.Source == "mqtt" {
		if err := startMQTTEvidence(ctx, mqttClient, &settings.Evidence.MQTT, coord, m.HTTP); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })

	if settings.WebServer.Enabled {
		opts := []api.Option{api.WithMetrics(m.HTTP, m.Handler())}
		if ds != nil {
			opts = append(opts, api.WithDatastore(ds))
		}
		if settings.Evidence.Source == "http" {
			opts = append(opts, api.WithEvidenceIngestion())
		}
		server := api.New(settings, coord, hub, opts...)
		g.Go(func() error { return server.Run(gctx, settings.WebServer.Listen) })
	}

	err = g.Wait()
	stats := bus.GetStats()
	log.Info("fallguard stopped",
		logger.Uint64("events_processed", stats.EventsProcessed),
		logger.Uint64("events_dropped", stats.EventsDropped),
		logger.Uint64("consumer_errors", stats.ConsumerErrors))
	return err
}

// startEventBus registers the status consumers: the hub serving the API, the
// MQTT republisher and the episode recorder.
func startEventBus(mqttClient mqtt.Client, ds datastore.Interface) (*events.EventBus, *status.Hub, error) {
	bus := events.NewEventBus(events.DefaultConfig())
	hub := status.NewHub()

	consumers := []events.EventConsumer{hub}
	if mqttClient != nil {
		consumers = append(consumers, status.NewMQTTPublisher(mqttClient, mqttClient.Topic()))
	}
	if ds != nil {
		consumers = append(consumers, datastore.NewRecorder(ds))
	}
	for _, c := range consumers {
		if err := bus.RegisterConsumer(c); err != nil {
			_ = bus.Shutdown(busShutdownTimeout)
			return nil, nil, err
		}
	}
	return bus, hub, nil
}

// startMQTTEvidence subscribes the evidence topics. Messages arriving before
// the coordinator runs wait in its queues.
func startMQTTEvidence(ctx context.Context, client mqtt.Client, topics *conf.EvidenceMQTTSettings, sink evidence.Sink, rejections evidence.RejectionRecorder) error {
	if client == nil {
		return errors.Newf("evidence source mqtt needs an MQTT connection").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	src, err := evidence.NewMQTTSource(client, *topics, sink, rejections)
	if err != nil {
		return err
	}
	return src.Start(ctx)
}

func closeDataStore(store datastore.Interface) {
	if err := store.Close(); err != nil {
		GetLogger().Error("failed to close database", logger.Error(err))
	}
}

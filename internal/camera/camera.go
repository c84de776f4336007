// Package camera implements the power controllers that switch the camera and
// its posture analyzer on and off for the accident coordinator.
package camera

import (
	"strings"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

// Controller kinds accepted in camera.controller
const (
	KindNone    = "none"
	KindCommand = "command"
	KindMQTT    = "mqtt"
)

// GetLogger returns the camera package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("camera")
}

// New builds the controller selected in settings. publisher is only used by
// the mqtt controller and may be nil otherwise.
func New(settings *conf.CameraSettings, publisher Publisher) (accident.CameraPowerController, error) {
	switch strings.ToLower(settings.Controller) {
	case "", KindNone:
		return NewNopController(), nil
	case KindCommand:
		return NewCommandController(settings.Command.Start, settings.Command.Stop)
	case KindMQTT:
		if publisher == nil {
			return nil, errors.Newf("mqtt camera controller requires an MQTT connection").
				Component("camera").
				Category(errors.CategoryConfiguration).
				Build()
		}
		return NewMQTTController(publisher, settings.MQTT.Topic, settings.MQTT.OnPayload, settings.MQTT.OffPayload)
	default:
		return nil, errors.Newf("unknown camera controller %q", settings.Controller).
			Component("camera").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// conf/validate.go

package conf

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := settings.DetectorConfig().Validate(); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Detector.Cooldown > 0 && settings.Detector.Video.FrameRate > 0 &&
		settings.Detector.Cooldown.Seconds()*float64(settings.Detector.Video.FrameRate) < 1 {
		ve.Errors = append(ve.Errors, "detector cool-down is shorter than one frame")
	}

	ve.Errors = append(ve.Errors, validateCameraSettings(&settings.Camera, &settings.MQTT)...)
	ve.Errors = append(ve.Errors, validateEvidenceSettings(&settings.Evidence, &settings.MQTT, &settings.WebServer)...)
	ve.Errors = append(ve.Errors, validateNotificationSettings(&settings.Notification)...)
	ve.Errors = append(ve.Errors, validateOutputSettings(&settings.Output)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is set")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCameraSettings(c *CameraSettings, m *MQTTSettings) []string {
	var errs []string
	switch c.Controller {
	case "none", "":
	case "command":
		if len(c.Command.Start) == 0 || len(c.Command.Stop) == 0 {
			errs = append(errs, "camera controller 'command' needs both start and stop commands")
		}
	case "mqtt":
		if !m.Enabled {
			errs = append(errs, "camera controller 'mqtt' requires mqtt.enabled")
		}
		if strings.TrimSpace(c.MQTT.Topic) == "" {
			errs = append(errs, "camera controller 'mqtt' needs camera.mqtt.topic")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown camera controller %q, expected command, mqtt or none", c.Controller))
	}
	return errs
}

func validateEvidenceSettings(e *EvidenceSettings, m *MQTTSettings, w *WebServerSettings) []string {
	var errs []string
	switch e.Source {
	case "none", "":
	case "mqtt":
		if !m.Enabled {
			errs = append(errs, "evidence source 'mqtt' requires mqtt.enabled")
		}
		if e.MQTT.AudioTopic == "" || e.MQTT.VideoTopic == "" {
			errs = append(errs, "evidence source 'mqtt' needs audio and video topics")
		}
	case "http":
		if !w.Enabled {
			errs = append(errs, "evidence source 'http' requires webserver.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown evidence source %q, expected mqtt, http or none", e.Source))
	}
	return errs
}

func validateNotificationSettings(n *NotificationSettings) []string {
	var errs []string
	if n.Shoutrrr.Enabled && len(n.Shoutrrr.URLs) == 0 {
		errs = append(errs, "shoutrrr notifications enabled without any service URL")
	}
	if n.Webhook.Enabled {
		if err := validateEnvURL(n.Webhook.URL); err != nil {
			errs = append(errs, fmt.Sprintf("webhook url: %v", err))
		}
	}
	if n.Script.Enabled {
		if n.Script.Path == "" {
			errs = append(errs, "script notifications enabled without a script path")
		}
		if n.PhoneNumber == "" {
			errs = append(errs, "script notifications need notification.phonenumber")
		}
	}
	if n.PhoneNumber != "" {
		if err := validateEnvPhoneNumber(n.PhoneNumber); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func validateOutputSettings(o *OutputSettings) []string {
	var errs []string
	if o.SQLite.Enabled && o.MySQL.Enabled {
		errs = append(errs, "only one of output.sqlite and output.mysql can be enabled")
	}
	if o.SQLite.Enabled && o.SQLite.Path == "" {
		errs = append(errs, "output.sqlite.path is required")
	}
	if o.MySQL.Enabled && slices.Contains([]string{o.MySQL.Host, o.MySQL.Database, o.MySQL.Username}, "") {
		errs = append(errs, "output.mysql needs host, database and username")
	}
	return errs
}

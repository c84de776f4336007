// env.go - Environment variable configuration and validation for fallguard
package conf

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix prefixes every automatically mapped variable, e.g.
// FALLGUARD_DETECTOR_VIDEO_FRAMERATE for detector.video.framerate.
const envPrefix = "FALLGUARD"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the short-named variables with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "FALLGUARD_DEBUG", validateEnvBool},

		// Decision parameters
		{"detector.audio.threshold", "FALLGUARD_AUDIO_THRESHOLD", validateEnvThreshold},
		{"detector.accident.threshold", "FALLGUARD_ACCIDENT_THRESHOLD", validateEnvDuration},
		{"detector.cooldown", "FALLGUARD_COOLDOWN", validateEnvDuration},
		{"detector.video.framerate", "FALLGUARD_FRAMERATE", validateEnvFrameRate},

		// Emergency action
		{"notification.phonenumber", "FALLGUARD_PHONE_NUMBER", validateEnvPhoneNumber},
		{"notification.webhook.url", "FALLGUARD_WEBHOOK_URL", validateEnvURL},

		// Broker and storage credentials
		{"mqtt.broker", "FALLGUARD_MQTT_BROKER", validateEnvURL},
		{"mqtt.username", "FALLGUARD_MQTT_USERNAME", nil},
		{"mqtt.password", "FALLGUARD_MQTT_PASSWORD", nil},
		{"output.mysql.password", "FALLGUARD_MYSQL_PASSWORD", nil},
		{"sentry.dsn", "FALLGUARD_SENTRY_DSN", validateEnvURL},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvThreshold(value string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("invalid number '%s'", value)
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %g", v)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration '%s', expected e.g. 10s or 8m", value)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvFrameRate(value string) error {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer '%s'", value)
	}
	if v < 1 || v > 240 {
		return fmt.Errorf("frame rate must be between 1 and 240, got %d", v)
	}
	return nil
}

// phonePattern accepts digits with an optional leading + and common separators
var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{2,19}$`)

func validateEnvPhoneNumber(value string) error {
	if !phonePattern.MatchString(strings.TrimSpace(value)) {
		return fmt.Errorf("phone number must contain 3-20 digits with optional +, spaces, dashes or parentheses")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must include scheme and host")
	}
	return nil
}

// config.go: settings struct for fallguard and the functions to load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// AudioDetectorSettings holds the audio evidence parameters.
type AudioDetectorSettings struct {
	Threshold float64 // score strictly above this is an alert
}

// VideoDetectorSettings holds the video evidence parameters.
type VideoDetectorSettings struct {
	FrameRate int    // analyzed frames per second
	Label     string // detection label inspected for posture
}

// AccidentSettings holds the trigger parameters.
type AccidentSettings struct {
	Threshold time.Duration // corroborated time that must be exceeded, 480s in production
}

// CameraTimingSettings bounds the camera power calls.
type CameraTimingSettings struct {
	WarmupDelay  time.Duration // delay between the opening alert and camera start
	FrameTimeout time.Duration // an active camera silent for this long is released
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// DetectorSettings contains the decision parameters of the accident coordinator.
type DetectorSettings struct {
	Audio         AudioDetectorSettings
	Video         VideoDetectorSettings
	Cooldown      time.Duration // camera stays on this long after the latest alert, 600s in production
	Accident      AccidentSettings
	Camera        CameraTimingSettings
	NotifyTimeout time.Duration // bound on a single emergency action
	QueueSize     int           // pending audio scores before new ones are dropped
}

// CommandCameraSettings runs external commands to switch the camera.
type CommandCameraSettings struct {
	Start []string // argv of the command that powers the camera on
	Stop  []string // argv of the command that powers the camera off
}

// MQTTCameraSettings publishes power commands to an MQTT topic.
type MQTTCameraSettings struct {
	Topic      string
	OnPayload  string
	OffPayload string
}

// CameraSettings selects the camera power controller.
type CameraSettings struct {
	Controller string // "command", "mqtt" or "none"
	Command    CommandCameraSettings
	MQTT       MQTTCameraSettings
}

// EvidenceMQTTSettings names the topics classifier output arrives on.
type EvidenceMQTTSettings struct {
	AudioTopic  string
	VideoTopic  string
	StatusTopic string
}

// EvidenceSettings selects where classifier output comes from.
type EvidenceSettings struct {
	Source string // "mqtt", "http" or "none"
	MQTT   EvidenceMQTTSettings
}

// ShoutrrrSettings configures shoutrrr delivery.
type ShoutrrrSettings struct {
	Enabled bool
	URLs    []string // shoutrrr service URLs, e.g. telegram://token@telegram?chats=123
}

// WebhookSettings configures the JSON webhook provider.
type WebhookSettings struct {
	Enabled bool
	URL     string
	Headers map[string]string
}

// ScriptSettings configures the external dial script.
type ScriptSettings struct {
	Enabled bool
	Path    string   // executable, receives the incident in its environment
	Args    []string // extra arguments
}

// NotificationSettings configures the emergency action.
type NotificationSettings struct {
	PhoneNumber string // number the dial script calls
	Title       string
	Shoutrrr    ShoutrrrSettings
	Webhook     WebhookSettings
	Script      ScriptSettings
}

// MQTTSettings contains settings for the MQTT broker connection.
type MQTTSettings struct {
	Enabled        bool
	Broker         string // MQTT (tcp://host:port)
	ClientID       string
	Topic          string // prefix for published status
	Username       string
	Password       string
	Retain         bool
	ConnectTimeout time.Duration
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled bool
	Listen  string // address and port to listen on
	Debug   bool
}

// SQLiteSettings configures the SQLite episode store.
type SQLiteSettings struct {
	Enabled bool   // true to enable sqlite output
	Path    string // path to sqlite database
}

// MySQLSettings configures the MySQL episode store.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings selects where episodes are recorded.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string
	Debug   bool
}

// Settings contains all configuration options for fallguard.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name string // node name, included in emergency messages
	}

	Logging logger.LoggingConfig

	Detector     DetectorSettings
	Camera       CameraSettings
	Evidence     EvidenceSettings
	Notification NotificationSettings
	MQTT         MQTTSettings
	WebServer    WebServerSettings
	Output       OutputSettings
	Sentry       SentrySettings
}

// DetectorConfig converts the detector section into coordinator parameters.
func (s *Settings) DetectorConfig() accident.Config {
	d := s.Detector
	return accident.Config{
		AudioThreshold:    d.Audio.Threshold,
		FrameRate:         d.Video.FrameRate,
		CooldownFrames:    int(math.Round(d.Cooldown.Seconds() * float64(d.Video.FrameRate))),
		AccidentThreshold: d.Accident.Threshold,
		WarmupDelay:       d.Camera.WarmupDelay,
		FrameTimeout:      d.Camera.FrameTimeout,
		StartTimeout:      d.Camera.StartTimeout,
		StopTimeout:       d.Camera.StopTimeout,
		NotifyTimeout:     d.NotifyTimeout,
		AudioQueueSize:    d.QueueSize,
		PersonLabel:       d.Video.Label,
	}
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// defined in defaults.go
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		GetLogger().Warn("environment variable configuration issues", logger.Error(err))
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	return viper.ReadInConfig()
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath. It overwrites the existing
// file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file in the same directory so the rename is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"

	"github.com/tphakala/fallguard/internal/accident"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "fallguard")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/fallguard.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("detector.audio.threshold", accident.DefaultAudioThreshold)
	viper.SetDefault("detector.video.framerate", accident.DefaultFrameRate)
	viper.SetDefault("detector.video.label", accident.DefaultPersonLabel)
	viper.SetDefault("detector.cooldown", accident.DefaultCooldown)
	viper.SetDefault("detector.accident.threshold", accident.DefaultAccidentThreshold)
	viper.SetDefault("detector.camera.warmupdelay", accident.DefaultWarmupDelay)
	viper.SetDefault("detector.camera.frametimeout", accident.DefaultFrameTimeout)
	viper.SetDefault("detector.camera.starttimeout", accident.DefaultStartTimeout)
	viper.SetDefault("detector.camera.stoptimeout", accident.DefaultStopTimeout)
	viper.SetDefault("detector.notifytimeout", accident.DefaultNotifyTimeout)
	viper.SetDefault("detector.queuesize", accident.DefaultAudioQueueSize)

	viper.SetDefault("camera.controller", "none")
	viper.SetDefault("camera.command.start", []string{})
	viper.SetDefault("camera.command.stop", []string{})
	viper.SetDefault("camera.mqtt.topic", "fallguard/camera/power")
	viper.SetDefault("camera.mqtt.onpayload", "ON")
	viper.SetDefault("camera.mqtt.offpayload", "OFF")

	viper.SetDefault("evidence.source", "http")
	viper.SetDefault("evidence.mqtt.audiotopic", "fallguard/evidence/audio")
	viper.SetDefault("evidence.mqtt.videotopic", "fallguard/evidence/video")
	viper.SetDefault("evidence.mqtt.statustopic", "fallguard/evidence/status")

	viper.SetDefault("notification.phonenumber", "")
	viper.SetDefault("notification.title", "Fall detected")
	viper.SetDefault("notification.shoutrrr.enabled", false)
	viper.SetDefault("notification.shoutrrr.urls", []string{})
	viper.SetDefault("notification.webhook.enabled", false)
	viper.SetDefault("notification.webhook.url", "")
	viper.SetDefault("notification.script.enabled", false)
	viper.SetDefault("notification.script.path", "")
	viper.SetDefault("notification.script.args", []string{})

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "fallguard")
	viper.SetDefault("mqtt.topic", "fallguard")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.connecttimeout", "10s")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "fallguard.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "fallguard")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.debug", false)
}

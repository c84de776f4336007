// Package cmd holds the fallguard command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fallguard/cmd/episodes"
	"github.com/tphakala/fallguard/cmd/notify"
	"github.com/tphakala/fallguard/cmd/realtime"
	"github.com/tphakala/fallguard/cmd/simulate"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "fallguard",
		Short:        "Fall and accident detection from audio and video evidence",
		SilenceUsage: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		conf.GetLogger().Error("failed to set up flags", logger.Error(err))
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		simulate.Command(settings),
		notify.Command(settings),
		episodes.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(settings)
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if settings.Sentry.Enabled {
			errors.FlushSentry(sentryFlushTimeout)
		}
	}

	return rootCmd
}

// initialize runs after flags are parsed and before any subcommand.
func initialize(settings *conf.Settings) error {
	// flags may have changed validated values
	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, settings.Version, settings.Sentry.Debug); err != nil {
			logger.Global().Module("main").Warn("error reporting disabled", logger.Error(err))
		}
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	flags.Float64VarP(&settings.Detector.Audio.Threshold, "threshold", "t", viper.GetFloat64("detector.audio.threshold"), "Audio score above which a sound is an accident alert, 0.0 to 1.0")
	flags.DurationVar(&settings.Detector.Accident.Threshold, "accident-threshold", viper.GetDuration("detector.accident.threshold"), "Corroborated lying time that triggers the emergency action")
	flags.DurationVar(&settings.Detector.Cooldown, "cooldown", viper.GetDuration("detector.cooldown"), "How long the camera stays on after the latest alert")
	flags.IntVar(&settings.Detector.Video.FrameRate, "framerate", viper.GetInt("detector.video.framerate"), "Analyzed frames per second")

	for key, name := range map[string]string{
		"debug":                       "debug",
		"detector.audio.threshold":    "threshold",
		"detector.accident.threshold": "accident-threshold",
		"detector.cooldown":           "cooldown",
		"detector.video.framerate":    "framerate",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

package realtime

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fallguard/internal/analysis"
	"github.com/tphakala/fallguard/internal/conf"
)

// Command creates the command that runs the coordinator as a service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Monitor evidence streams and raise emergencies",
		Long: `Start the accident coordinator. Audio and video classifier output is read
from MQTT or the HTTP API, the camera is powered on demand and the emergency
action runs when a fall is corroborated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return analysis.RealtimeAnalysis(ctx, settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Evidence.Source, "evidence", viper.GetString("evidence.source"), "Where classifier output arrives: mqtt, http or none")
	cmd.Flags().StringVar(&settings.Camera.Controller, "camera", viper.GetString("camera.controller"), "Camera power controller: command, mqtt or none")
	cmd.Flags().StringVar(&settings.WebServer.Listen, "listen", viper.GetString("webserver.listen"), "Listen address and port of the HTTP API")
	cmd.Flags().StringVar(&settings.Output.SQLite.Path, "db", viper.GetString("output.sqlite.path"), "Path of the SQLite episode database")

	bindings := map[string]string{
		"evidence.source":    "evidence",
		"camera.controller":  "camera",
		"webserver.listen":   "listen",
		"output.sqlite.path": "db",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

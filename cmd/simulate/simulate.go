// Package simulate replays scenario files through the decision engine.
package simulate

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/analysis"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/evidence"
	"github.com/tphakala/fallguard/internal/notification"
)

// Command returns the simulate command
func Command(settings *conf.Settings) *cobra.Command {
	var (
		asJSON         bool
		sendNotify     bool
		expectTriggers int
	)

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a recorded or scripted scenario on a virtual clock",
		Long: `Replay a scenario file through the accident decision engine without a
camera or live classifiers. The camera is simulated and time is virtual, so
an hour long recording replays in milliseconds with the same outcome every
time.

Examples:
  fallguard simulate testdata/hallway.yaml
  fallguard simulate --expect-triggers=1 testdata/hallway.yaml
  fallguard simulate --notify --accident-threshold=5s testdata/hallway.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := evidence.LoadScenario(args[0])
			if err != nil {
				return err
			}

			opts := analysis.SimulationOptions{}
			if sendNotify {
				svc, err := notification.NewServiceFromSettings(&settings.Notification, nil)
				if err != nil {
					return err
				}
				opts.Notifier = svc
			}

			res, err := analysis.Simulate(cmd.Context(), settings.DetectorConfig(), sc, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printResult(out, res)
			}

			if expectTriggers >= 0 && res.Triggers != expectTriggers {
				return fmt.Errorf("expected %d emergency triggers, got %d", expectTriggers, res.Triggers)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "Send real notifications through the configured providers")
	cmd.Flags().IntVar(&expectTriggers, "expect-triggers", -1, "Fail unless exactly this many emergencies were triggered")

	return cmd
}

func printResult(w io.Writer, res *analysis.SimulationResult) {
	fmt.Fprintf(w, "Scenario:   %s\n", res.Scenario)
	fmt.Fprintf(w, "Duration:   %s\n", res.Duration)
	fmt.Fprintf(w, "Episodes:   %d\n", len(res.Episodes))
	fmt.Fprintf(w, "Triggers:   %d\n", res.Triggers)
	fmt.Fprintf(w, "Final:      %s\n", res.Final.StateName)

	for _, inc := range res.Incidents {
		fmt.Fprintf(w, "\nEMERGENCY  episode %s  accident time %.2f s  after %s\n",
			inc.EpisodeID,
			accident.RoundSeconds(inc.AccidentTimeSeconds),
			inc.TriggeredAt.Sub(inc.StartedAt))
	}
	if len(res.Episodes) > 0 {
		fmt.Fprintln(w)
	}
	for _, ep := range res.Episodes {
		fmt.Fprintf(w, "episode %s  outcome=%s  alerts=%d  frames=%d  lying=%d  accident=%.2fs\n",
			ep.ID, ep.Outcome, ep.AlertCount, ep.FramesProcessed, ep.CorroboratingFrames,
			accident.RoundSeconds(ep.AccidentSeconds))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error   %s/%s: %s\n", e.Stream, e.Kind, e.Message)
	}
}

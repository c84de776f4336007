// Package episodes lists and exports the recorded episode history.
package episodes

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/datastore"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/report"
)

// Command returns the episodes command
func Command(settings *conf.Settings) *cobra.Command {
	var (
		limit     int
		since     time.Duration
		emergency bool
		asJSON    bool
		xlsxPath  string
	)

	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List recorded episodes",
		Long: `List episodes from the episode database, newest first.

Examples:
  fallguard episodes --since=24h
  fallguard episodes --emergency --xlsx=emergencies.xlsx
  fallguard episodes report 0f8c2d7e --pdf=incident.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			opts := datastore.ListOptions{Limit: limit, EmergencyOnly: emergency}
			if since > 0 {
				opts.Since = time.Now().Add(-since)
			}
			list, err := store.ListEpisodes(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if xlsxPath != "" {
				return writeFile(xlsxPath, func(w io.Writer) error {
					return report.WriteEpisodesXLSX(w, list)
				})
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return printTable(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of episodes")
	cmd.Flags().DurationVar(&since, "since", 0, "Only episodes started within this duration")
	cmd.Flags().BoolVar(&emergency, "emergency", false, "Only episodes that triggered the emergency action")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write the list to this spreadsheet instead of printing it")

	cmd.AddCommand(reportCommand(settings))
	return cmd
}

func reportCommand(settings *conf.Settings) *cobra.Command {
	var pdfPath string

	cmd := &cobra.Command{
		Use:   "report <episode-id>",
		Short: "Write a PDF report of one episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			ep, err := store.GetEpisode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if pdfPath == "" {
				pdfPath = fmt.Sprintf("fallguard-%s.pdf", ep.ID)
			}
			if err := writeFile(pdfPath, func(w io.Writer) error {
				return report.WriteIncidentPDF(w, &ep, settings.Main.Name)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", pdfPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Output file, fallguard-<id>.pdf by default")
	return cmd
}

func openStore(settings *conf.Settings) (*datastore.DataStore, error) {
	store, err := datastore.New(&settings.Output, nil)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.Newf("no episode database is enabled, see output.sqlite and output.mysql").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return store, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printTable(w io.Writer, list []accident.Episode) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tOUTCOME\tEMERGENCY\tACCIDENT\tALERTS\tFRAMES")
	for _, ep := range list {
		outcome := string(ep.Outcome)
		if outcome == "" {
			outcome = "open"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%.2fs\t%d\t%d\n",
			ep.ID,
			ep.StartedAt.Local().Format(time.DateTime),
			outcome,
			ep.EmergencyTriggered,
			accident.RoundSeconds(ep.AccidentSeconds),
			ep.AlertCount,
			ep.FramesProcessed)
	}
	return tw.Flush()
}

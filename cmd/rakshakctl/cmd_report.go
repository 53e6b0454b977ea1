package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/rakshak/internal/config"
	"github.com/sakif/rakshak/internal/server"
	"github.com/sakif/rakshak/internal/service"
)

func newReportCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report UID",
		Short: "Print a user's safety report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := newLogger(cmd)
			db, docs, err := server.OpenStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			session := service.NewSessionCache(db, cfg.Auth.TokenTTL, logger)
			defer session.Close()
			safety := service.NewSafetyService(db, docs, session, nil, logger)

			report, err := safety.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Fprintf(out, "Safety score:    %d/100\n", report.SafetyScore)
			fmt.Fprintf(out, "SOS events:      %d\n", report.SOSEvents)
			if report.LastSOSEvent != nil {
				fmt.Fprintf(out, "Last SOS:        %s (%s)\n",
					report.LastSOSEvent.Timestamp.Format("2006-01-02 15:04"), report.LastSOSEvent.Type)
			}
			fmt.Fprintf(out, "Location shares: %d\n", report.LocationShares)
			if report.Preferences != nil {
				fmt.Fprintf(out, "Preferences:     %d set\n", len(report.Preferences.Values))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

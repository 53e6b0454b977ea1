// Command rakshakctl is the operator CLI for a Rakshak deployment.
//
// It reads the same configuration as the server (RAKSHAK_CONFIG, .env,
// environment) and talks to the stores directly:
//
//	rakshakctl seed [--file seed.yaml] [--only-empty]
//	rakshakctl distance LAT1 LNG1 LAT2 LNG2
//	rakshakctl nearest LAT LNG
//	rakshakctl report UID
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rakshakctl",
		Short: "Operate a Rakshak personal-safety server",
		Long: `rakshakctl manages the data behind a Rakshak server.

Available subcommands:
  seed     - write the public collections (safety tips, helplines) from YAML
  distance - great-circle distance between two points, in km
  nearest  - the known safe places around a point, closest first
  report   - a user's safety report from the local store`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newSeedCmd(),
		newDistanceCmd(),
		newNearestCmd(),
		newReportCmd(),
	)
	return root
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

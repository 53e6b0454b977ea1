package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/rakshak/internal/config"
	"github.com/sakif/rakshak/internal/seed"
	"github.com/sakif/rakshak/internal/server"
)

func newSeedCmd() *cobra.Command {
	var (
		file      string
		onlyEmpty bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the public collections from a YAML seed file",
		Long: `Write safety tips and helplines into the document store.

Entries are merged by id, so running seed twice leaves one copy of each.
Without --file the seed file from the configuration is used, and without
that the built-in default set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Seed.File
			}

			set, err := seed.Load(file)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				for _, coll := range set.Collections() {
					fmt.Fprintf(out, "%s: %d entries\n", coll, len(set[coll]))
				}
				return nil
			}

			logger := newLogger(cmd)
			db, docs, err := server.OpenStores(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := seed.Apply(cmd.Context(), docs, set, seed.Options{OnlyEmpty: onlyEmpty}, logger)
			for _, coll := range set.Collections() {
				fmt.Fprintf(out, "%s: %d written\n", coll, res[coll])
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "seed file (default: configured or built-in)")
	cmd.Flags().BoolVar(&onlyEmpty, "only-empty", false, "skip collections that already have documents")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and count entries without writing")
	return cmd
}

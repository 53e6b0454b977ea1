package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sakif/rakshak/internal/geo"
)

func newDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distance LAT1 LNG1 LAT2 LNG2",
		Short: "Great-circle distance between two points, in km",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			coords, err := parseCoords(args)
			if err != nil {
				return err
			}
			d := geo.Distance(coords[0], coords[1], coords[2], coords[3])
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f km\n", d)
			return nil
		},
	}
}

func newNearestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nearest LAT LNG",
		Short: "Known safe places around a point, closest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coords, err := parseCoords(args)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tDISTANCE")
			for _, p := range geo.Nearest(coords[0], coords[1]) {
				fmt.Fprintf(tw, "%s\t%s\t%.3f km\n", p.Name, p.Type, p.DistanceKm)
			}
			return tw.Flush()
		},
	}
}

// parseCoords reads alternating latitude/longitude arguments.
func parseCoords(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %q is not a number", i+1, a)
		}
		limit := 90.0
		if i%2 == 1 {
			limit = 180
		}
		if v < -limit || v > limit {
			return nil, fmt.Errorf("argument %d: %v is out of range", i+1, v)
		}
		out[i] = v
	}
	return out, nil
}

package cli

import (
	"github.com/spf13/cobra"
)

// NewReportCmd prints the class snapshot, optionally ranking a given score.
func NewReportCmd(configPath *string) *cobra.Command {
	var score float64
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print class statistics from the result log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			snapshot, err := e.service.Report(ctx, nil)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("score") {
				percentile, diff, err := e.service.Standing(ctx, score)
				if err != nil {
					return err
				}
				snapshot.Percentile = &percentile
				snapshot.SelfVsAverage = &diff
			}
			return writeJSON(cmd.OutOrStdout(), snapshot)
		},
	}
	cmd.Flags().Float64Var(&score, "score", 0, "rank this score against the class")
	return cmd
}

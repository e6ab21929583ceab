package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand, which executes one harvest.
func newRunCmd(e *env) *cobra.Command {
	var printSummary bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one harvest",
		Long: `Loads the index snapshot, discovers postings on the configured listing
page, scrapes the new ones and writes their identifiers and blobs back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close(a)

			summary, runErr := a.Run(cmd.Context())
			if printSummary {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					e.logger.Warn("Failed to print summary", zap.Error(err))
				}
			}
			if runErr != nil {
				return fmt.Errorf("run harvest: %w", runErr)
			}
			e.logger.Info("Run command finished.",
				zap.String("run_id", summary.RunID),
				zap.Int("scraped", summary.Scraped),
				zap.Int("failed", summary.Failed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&printSummary, "print-summary", true, "write the run summary as JSON to stdout")
	return cmd
}

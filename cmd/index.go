package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/jobpost-harvester/internal/harvest"
)

// indexStats describes the rows currently stored in the index.
type indexStats struct {
	Rows       int
	Unique     int
	Blank      int
	Duplicates int
}

func computeIndexStats(rows []string) indexStats {
	snap := harvest.NewSnapshot(rows)
	stats := indexStats{Rows: snap.Rows, Unique: snap.Unique()}
	for _, row := range rows {
		if row == "" {
			stats.Blank++
		}
	}
	stats.Duplicates = stats.Rows - stats.Blank - stats.Unique
	return stats
}

// newIndexCmd creates the read-only 'index' subcommand.
func newIndexCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Reports what the index store holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close(a)

			rows, err := a.Index().LoadIdentifiers(cmd.Context())
			if err != nil {
				return fmt.Errorf("load index: %w", err)
			}
			stats := computeIndexStats(rows)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "rows=%d unique=%d blank=%d duplicates=%d\n",
				stats.Rows, stats.Unique, stats.Blank, stats.Duplicates)
			return err
		},
	}
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCommand(opts *options) *cobra.Command {
	var snapshotDir string
	cmd := &cobra.Command{
		Use:   "index <file-or-url>",
		Short: "Build an index from a product file",
		Long: `Fetch a product file (local path, file://, http(s):// or s3:// URL,
optionally gzip-compressed) and build an index generation from it. With
--snapshot-dir the generation is also written as a snapshot file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapshotDir != "" {
				opts.cfg.Indexer.SnapshotDir = snapshotDir
			}
			_, stats, batch, err := opts.build(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("indexing %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed file %s\n", args[0])
			fmt.Fprintf(out, "  generation: %d (build %s)\n", stats.GenerationID, stats.BuildID)
			fmt.Fprintf(out, "  products:   %d indexed, %d skipped\n", stats.Indexed, stats.Skipped+batch.Skipped)
			fmt.Fprintf(out, "  terms:      %d\n", stats.Terms)
			fmt.Fprintf(out, "  duration:   %s\n", stats.Duration.Round(time.Millisecond))
			if stats.Snapshot != "" {
				fmt.Fprintf(out, "  snapshot:   %s\n", stats.Snapshot)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshotDir, "snapshot-dir", "", "directory receiving the generation snapshot")
	return cmd
}

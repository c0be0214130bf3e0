package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
)

func newInspectCommand(_ *options) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "inspect <snapshot-or-dir>",
		Short: "Print a snapshot's header and most frequent terms",
		Long: `Print the header of a generation snapshot and the most frequent terms of
each field. Given a directory, the newest snapshot in it is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveSnapshot(args[0])
			if err != nil {
				return err
			}
			r, err := segment.OpenReader(path)
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			h := r.Header()
			fmt.Fprintf(out, "snapshot:   %s\n", r.Path())
			fmt.Fprintf(out, "version:    %d\n", h.Version)
			fmt.Fprintf(out, "generation: %d\n", h.GenerationID)
			fmt.Fprintf(out, "created:    %s\n", time.Unix(h.CreatedAt, 0).UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "documents:  %d\n", h.DocCount)
			fmt.Fprintf(out, "terms:      %d\n", h.TermCount)

			for _, f := range index.Fields {
				section, ok := r.Section(f)
				if !ok {
					continue
				}
				fmt.Fprintf(out, "\n%s (%d terms, %d tokens)\n", f, len(section.Entries), section.Tokens)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, e := range r.TopTerms(f, top) {
					fmt.Fprintf(tw, "  %s\t%d\n", e.Term, e.DocFreq)
				}
				tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "terms to list per field")
	return cmd
}

func resolveSnapshot(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return arg, nil
	}
	paths, err := segment.List(arg)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no snapshots in %s", arg)
	}
	return paths[len(paths)-1], nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/executor"
)

func newQueryCommand(opts *options) *cobra.Command {
	var (
		queries []string
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "query <file-or-url>",
		Short: "Build an index from a product file and run queries against it",
		Long: `Build an index generation from a product file and run every -q query
against it. Queries use the service syntax: implicit OR, AND, OR, NOT,
parentheses, "quoted phrases" and field:term qualifiers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(queries) == 0 {
				return fmt.Errorf("at least one -q query is required")
			}
			store, _, _, err := opts.build(cmd.Context(), args[0], cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("indexing %s: %w", args[0], err)
			}
			exec := executor.New(store, opts.cfg.Search)

			out := cmd.OutOrStdout()
			results := make([]*executor.SearchResult, 0, len(queries))
			for _, q := range queries {
				result, err := exec.Search(cmd.Context(), q, limit)
				if err != nil {
					return fmt.Errorf("query %q: %w", q, err)
				}
				results = append(results, result)
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for i, result := range results {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printResult(cmd, result)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "query to run (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results per query")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func printResult(cmd *cobra.Command, result *executor.SearchResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%q: %d hits\n", result.Query, result.TotalHits)
	if len(result.Hits) == 0 {
		if result.Suggestion != "" {
			fmt.Fprintf(out, "Did you mean: %s\n", result.Suggestion)
		}
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tDOC\tTITLE\tMERCHANT")
	for i, hit := range result.Hits {
		fmt.Fprintf(tw, "%d\t%.4f\t%d\t%s\t%s\n", i+1, hit.Score, hit.DocID, truncate(hit.Title, 60), truncate(hit.Merchant, 30))
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Package cli implements the searchctl commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/logger"
)

type options struct {
	cfgFile  string
	logLevel string
	progress bool
	cfg      *config.Config
}

// NewRootCommand returns the searchctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "searchctl",
		Short: "Build, query and inspect product search indexes",
		Long: `searchctl runs the product search indexer and query engine offline.

Example usage:
  searchctl index products.json.gz --snapshot-dir ./data   # build and snapshot
  searchctl query s3://bucket/products.json -q "red shoe"  # build then query
  searchctl inspect ./data                                 # newest snapshot
  searchctl bench --url http://localhost:8080 -q shoe      # load-test a server`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "YAML config file (defaults and SP_* environment otherwise)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&opts.progress, "progress", true, "show download progress")

	root.AddCommand(
		newIndexCommand(opts),
		newQueryCommand(opts),
		newInspectCommand(opts),
		newBenchCommand(opts),
	)
	return root
}

// Execute runs searchctl and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// build fetches src and publishes it into a fresh store.
func (o *options) build(ctx context.Context, src string, progressOut io.Writer) (*segment.Store, indexer.BuildStats, *catalog.Batch, error) {
	fetcher := catalog.NewFetcher(o.cfg.Storage, nil)
	if o.progress {
		fetcher.WithProgress(func(total int64) io.Writer {
			return progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(progressOut),
				progressbar.OptionSetDescription("downloading"),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionClearOnFinish(),
			)
		})
	}
	batch, err := fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, indexer.BuildStats{}, nil, err
	}

	store := segment.NewStore()
	engine := indexer.NewEngine(o.cfg.Indexer, o.cfg.Suggest, store, nil)
	stats, err := engine.Rebuild(ctx, batch.Products)
	if err != nil {
		return nil, stats, batch, err
	}
	return store, stats, batch, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/pipeline"
)

// newDiscoverCmd creates the 'discover' subcommand, which checks ranked and
// curated domains and adds every qualifying PWA to the record store.
func newDiscoverCmd() *cobra.Command {
	var req pipeline.DiscoverRequest
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discovers PWAs from domain sources and adds them to the directory",
		Long: `Pulls candidate domains from the Tranco ranking, curated markdown lists,
or both, checks each one, and adds the PWAs that are not yet listed. Progress is
checkpointed to the discovery history file so an interrupted run keeps its finds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Directory().Discover(cmd.Context(), req)
			return finish(cmd, appInstance, summary.RunID, summary, err)
		},
	}
	cmd.Flags().StringVar(&req.Source, "source", "", "domain source: tranco, github, or all")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "number of domains to check (0 uses config)")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "domains to skip before checking")
	cmd.Flags().IntVar(&req.Concurrency, "concurrency", 0, "parallel checks (0 uses config)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "check without writing to the directory")
	return cmd
}

// newCrawlCmd creates the 'crawl' subcommand.
// It grows the JSON entry file from a candidate list or the configured sources.
func newCrawlCmd() *cobra.Command {
	var req pipeline.CrawlRequest
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls candidate sites and appends new PWAs to the entry file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Directory().Crawl(cmd.Context(), req)
			return finish(cmd, appInstance, summary.RunID, summary, err)
		},
	}
	cmd.Flags().StringVar(&req.Source, "source", "", "domain source when no candidate file is given")
	cmd.Flags().StringVar(&req.CandidatesPath, "candidates", "", "newline-separated URLs or domains to check")
	cmd.Flags().StringVar(&req.DataPath, "data", "", "JSON entry file to extend")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum new candidates to check (0 means all)")
	cmd.Flags().IntVar(&req.Concurrency, "concurrency", 0, "parallel checks (0 uses config)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "check without writing the entry file")
	return cmd
}

// finish prints whatever summary a batch produced before reporting its error,
// so an interrupted run still shows its partial progress.
func finish(cmd *cobra.Command, appInstance App, runID string, summary any, err error) error {
	if err != nil && runID == "" {
		return err
	}
	if printErr := printResult(cmd, summary); printErr != nil {
		return errors.Join(err, printErr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			appInstance.Logger().Warn("run interrupted; partial summary printed", zap.String("run_id", runID))
		}
		return fmt.Errorf("run %s: %w", runID, err)
	}
	return nil
}

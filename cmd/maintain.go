package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/pwa-discovery/internal/pipeline"
)

func newImportCmd() *cobra.Command {
	var req pipeline.ImportRequest
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Imports entries from a JSON entry file into the directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req.Path = args[0]
			summary, err := appInstance.Directory().Import(cmd.Context(), req)
			return finish(cmd, appInstance, summary.RunID, summary, err)
		},
	}
	cmd.Flags().IntVar(&req.Concurrency, "concurrency", 0, "parallel inserts (0 uses config)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "report without inserting")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	var req pipeline.DescribeRequest
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Replaces weak descriptions with each site's meta description",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Directory().Describe(cmd.Context(), req)
			return finish(cmd, appInstance, summary.RunID, summary, err)
		},
	}
	cmd.Flags().IntVar(&req.Concurrency, "concurrency", 0, "parallel fetches (0 uses config)")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "report without updating")
	return cmd
}

func newDedupeCmd() *cobra.Command {
	var req pipeline.DedupeRequest
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Archives records whose title repeats an earlier one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Directory().Dedupe(cmd.Context(), req)
			return finish(cmd, appInstance, summary.RunID, summary, err)
		},
	}
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "report without archiving")
	return cmd
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/pwa-discovery/internal/pipeline"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Checks whether a single site is an installable PWA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := appInstance.Directory().Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, resp)
		},
	}
}

func newAddCmd() *cobra.Command {
	var req pipeline.AddRequest
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Adds a PWA to the directory unless its link is already listed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.Directory().Add(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "display name")
	cmd.Flags().StringVar(&req.Link, "link", "", "site URL")
	cmd.Flags().StringVar(&req.Icon, "icon", "", "icon URL")
	cmd.Flags().StringVar(&req.Description, "description", "", "short description")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "tag to attach (repeatable)")
	return cmd
}

package main

import "github.com/spf13/cobra"

func newIndexCmd(a *app) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build the recognition index or check its status",
	}

	indexCmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Apply pending corpus changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.IndexBuild(cmd.Context())
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	})

	indexCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show index build progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.IndexStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	})

	return indexCmd
}

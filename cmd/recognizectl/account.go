package main

import (
	"github.com/spf13/cobra"

	"github.com/example/recognizeim/sdk/recognize"
)

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Check credentials and print the session reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Auth(cmd.Context(), a.cfg.Recognize.ClientID, a.cfg.Recognize.ClapiKey)
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	}
}

func newCallbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "callback <url>",
		Short: "Set the URL notified when an index build finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Callback(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	}
}

func newLimitsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Show account limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.UserLimits(cmd.Context())
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	}
}

func newModeCmd(a *app) *cobra.Command {
	modeCmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or change the account recognition mode",
	}

	modeCmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the current recognition mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.ModeGet(cmd.Context())
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	})

	modeCmd.AddCommand(&cobra.Command{
		Use:       "set <single|multi>",
		Short:     "Change the recognition mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"single", "multi"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := recognize.ParseMode(args[0])
			if err != nil {
				return err
			}
			resp, err := a.client.ModeChange(cmd.Context(), mode)
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	})

	return modeCmd
}

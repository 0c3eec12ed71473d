package main

import (
	"github.com/spf13/cobra"

	"github.com/example/recognizeim/sdk/recognize"
)

func newRecognizeCmd(a *app) *cobra.Command {
	var (
		modeName string
		all      bool
		flat     bool
	)

	cmd := &cobra.Command{
		Use:   "recognize <path>",
		Short: "Recognize objects in an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := recognize.ParseMode(modeName)
			if err != nil {
				return err
			}
			res, err := a.client.Recognize(cmd.Context(), args[0], mode, all)
			if err != nil {
				return err
			}
			if flat {
				return printMap(cmd.OutOrStdout(), res.Flatten())
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&modeName, "mode", "single", "recognition mode: single or multi")
	cmd.Flags().BoolVar(&all, "all", false, "return every match instead of the best one")
	cmd.Flags().BoolVar(&flat, "flat", false, "print top-level fields as a table")
	return cmd
}

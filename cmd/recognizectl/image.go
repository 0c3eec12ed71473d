package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/example/recognizeim/sdk/recognize"
)

func newImageCmd(a *app) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Insert, update or delete corpus images",
	}

	imageCmd.AddCommand(&cobra.Command{
		Use:   "insert <id> <name> <path>",
		Short: "Upload an image to the corpus",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.ImageInsert(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	})

	var all bool
	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete one image, or every image with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				resp recognize.Response
				err  error
			)
			switch {
			case all && len(args) == 0:
				resp, err = a.client.ImageDeleteAll(cmd.Context())
			case !all && len(args) == 1 && args[0] != "":
				resp, err = a.client.ImageDelete(cmd.Context(), args[0])
			default:
				return errors.New("pass either an image id or --all")
			}
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	}
	deleteCmd.Flags().BoolVar(&all, "all", false, "delete every image in the corpus")
	imageCmd.AddCommand(deleteCmd)

	imageCmd.AddCommand(&cobra.Command{
		Use:   "update <old-id> <new-id> <new-name>",
		Short: "Change the id and name of a stored image",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.ImageUpdate(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printMap(cmd.OutOrStdout(), resp)
		},
	})

	return imageCmd
}

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// NewUploadCommand stores one local file on Walrus
func NewUploadCommand(a *app) *cobra.Command {
	var (
		epochs int
		sendTo string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file to Walrus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.uploader().Upload(cmd.Context(), args[0], epochs, sendTo)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVarP(&epochs, "epochs", "e", 0, "number of epochs to store the file")
	cmd.Flags().StringVar(&sendTo, "send-to", "", "address receiving the blob object")
	_ = cmd.MarkFlagRequired("epochs")
	return cmd
}

// NewDownloadCommand pays through x402 when configured, then fetches a blob
func NewDownloadCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <blobId>",
		Short: "Download a blob from Walrus, paying via x402 first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return errors.New("blob id must not be empty")
			}
			client, err := a.paymentClient()
			if err != nil {
				return err
			}

			result, err := a.downloader(a.paymentGate(client)).Download(cmd.Context(), args[0], output)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default derived from the blob id)")
	return cmd
}

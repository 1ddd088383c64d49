package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const demoEpochs = 10

// NewDemoCommand writes a sample file, uploads it and downloads it back
func NewDemoCommand(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Upload a sample file to Walrus and download it again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := a.fs.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			samplePath := filepath.Join(dir, "sample.txt")
			content := fmt.Sprintf("Sample text file uploaded to Walrus.\nCreated: %s\nWalrus is decentralized storage.\n",
				time.Now().UTC().Format(time.RFC3339))
			if err := afero.WriteFile(a.fs, samplePath, []byte(content), 0o644); err != nil {
				return fmt.Errorf("write sample: %w", err)
			}
			a.logger.Info("sample file written", "path", samplePath)

			uploaded, err := a.uploader().Upload(ctx, samplePath, demoEpochs, "")
			if err != nil {
				return err
			}
			if err := printJSON(out, map[string]any{"upload": uploaded}); err != nil {
				return err
			}

			client, err := a.paymentClient()
			if err != nil {
				return err
			}
			downloaded, err := a.downloader(a.paymentGate(client)).
				Download(ctx, uploaded.BlobID, filepath.Join(dir, "downloaded_sample.txt"))
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{"download": downloaded})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "samples", "directory for the sample and downloaded files")
	return cmd
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-walrus-x402/logging"
	"github.com/spf13/afero"
)

func main() {
	logger := logging.Get()
	fs := afero.NewOsFs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := NewRootCommand(fs, logger)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

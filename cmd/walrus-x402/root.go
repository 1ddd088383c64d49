package main

import (
	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-walrus-x402/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// app carries what every subcommand shares. cfg is filled in by the root
// command's PersistentPreRunE.
type app struct {
	fs       afero.Fs
	logger   *log.Logger
	envFiles []string
	cfg      *config.Config
}

func (a *app) load() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	if cfg.Debug {
		a.logger.SetLevel(log.DebugLevel)
		a.logger.SetReportCaller(true)
	}
	a.cfg = cfg
	return nil
}

// NewRootCommand returns the root command with all subcommands attached
func NewRootCommand(fs afero.Fs, logger *log.Logger) *cobra.Command {
	a := &app{fs: fs, logger: logger}

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "walrus-x402",
		Short: "Walrus storage paid with x402, served over MCP",
		Long: `walrus-x402 uploads files to Walrus, downloads them after paying USDC
through an x402 gated resource server, and exposes both as MCP tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, ".env files to load (default .env)")

	rootCmd.AddCommand(NewMCPCommand(a))
	rootCmd.AddCommand(NewResourceServerCommand(a))
	rootCmd.AddCommand(NewUploadCommand(a))
	rootCmd.AddCommand(NewDownloadCommand(a))
	rootCmd.AddCommand(NewDemoCommand(a))
	rootCmd.AddCommand(NewCallCommand(a))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

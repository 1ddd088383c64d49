package main

import (
	"fmt"

	"github.com/mark3labs/mcp-walrus-x402/tools"
	"github.com/spf13/cobra"
)

// NewMCPCommand serves the tools over stdio or streamable HTTP
func NewMCPCommand(a *app) *cobra.Command {
	var transport, addr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the Walrus and x402 tools over MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.toolService()
			if err != nil {
				return err
			}

			switch transport {
			case "stdio":
				return tools.ServeStdio(cmd.Context(), svc, cmd.InOrStdin(), cmd.OutOrStdout())
			case "http":
				if addr == "" {
					addr = fmt.Sprintf(":%d", a.cfg.Port)
				}
				e := tools.NewHTTPHandler(svc)
				a.logger.Info("MCP server listening", "addr", addr, "endpoint", "/mcp")
				return serveUntilSignal(a.logger, "mcp-http", func() error { return e.Start(addr) }, e.Shutdown)
			default:
				return fmt.Errorf("unknown transport %q, want stdio or http", transport)
			}
		},
	}

	cmd.Flags().StringVarP(&transport, "transport", "t", "stdio", "stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for http (default :$PORT)")
	return cmd
}

package main

import (
	"fmt"

	"github.com/mark3labs/mcp-walrus-x402/server"
	"github.com/spf13/cobra"
)

// NewResourceServerCommand runs the x402 gated resource server
func NewResourceServerCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "resource-server",
		Short: "Run the x402 gated resource server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateResourceServer(); err != nil {
				return err
			}

			srv, err := server.NewResourceServer(&server.Config{
				FacilitatorURL: a.cfg.FacilitatorURL,
				PayTo:          a.cfg.Address,
				Network:        a.cfg.Network,
				VerifyOnly:     a.cfg.VerifyOnly,
				Logger:         a.logger,
			}, server.Dependencies{
				Facilitator: server.NewHTTPFacilitator(a.cfg.FacilitatorURL),
				Fetcher:     a.downloader(nil),
				Uploader:    a.uploader(),
			})
			if err != nil {
				return err
			}

			if addr == "" {
				addr = fmt.Sprintf(":%d", a.cfg.ResourceServerPort)
			}
			a.logger.Info("payments", "network", a.cfg.Network, "payTo", a.cfg.Address, "facilitator", a.cfg.FacilitatorURL, "verifyOnly", a.cfg.VerifyOnly)
			return serveUntilSignal(a.logger, "resource-server", func() error { return srv.Start(addr) }, srv.Shutdown)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$RESOURCE_SERVER_PORT)")
	return cmd
}

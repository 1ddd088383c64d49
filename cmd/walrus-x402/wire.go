package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	x402 "github.com/mark3labs/mcp-walrus-x402"
	"github.com/mark3labs/mcp-walrus-x402/tools"
	"github.com/mark3labs/mcp-walrus-x402/walrus"
)

const shutdownTimeout = 10 * time.Second

// paymentClient builds the x402 resource client, or nil when no signer or
// resource server is configured.
func (a *app) paymentClient() (*x402.Client, error) {
	if !a.cfg.HasSigner() || a.cfg.ResourceServerURL == "" {
		return nil, nil
	}

	cc, err := a.cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	cc.Logger = a.logger
	cc.OnPaymentAttempt = func(e x402.PaymentEvent) {
		a.logger.Info("x402 payment attempt", paymentFields(e)...)
	}
	cc.OnPaymentSuccess = func(e x402.PaymentEvent) {
		a.logger.Info("x402 payment settled", paymentFields(e)...)
	}
	cc.OnPaymentFailure = func(e x402.PaymentEvent, err error) {
		a.logger.Error("x402 payment failed", append(paymentFields(e), "err", err)...)
	}
	return x402.NewClient(cc)
}

func paymentFields(e x402.PaymentEvent) []any {
	amount := "0"
	if e.Amount != nil {
		amount = humanize.BigComma(e.Amount)
	}
	return []any{
		"resource", e.Resource,
		"network", e.Network,
		"amount", amount,
		"recipient", e.Recipient,
		"tx", e.Transaction,
	}
}

// paymentGate returns the client as a download gate when ENDPOINT_PATH is set
func (a *app) paymentGate(client *x402.Client) walrus.PaymentGate {
	if client == nil || a.cfg.EndpointPath == "" {
		a.logger.Warn("downloads will not pay", "reason", a.cfg.ValidatePayment())
		return nil
	}
	return client
}

func (a *app) uploader() *walrus.Uploader {
	return walrus.NewUploader(walrus.UploaderConfig{
		Endpoints: a.cfg.Endpoints(),
		Fs:        a.fs,
		TempDir:   a.cfg.TempDir,
		Logger:    a.logger,
	})
}

func (a *app) downloader(gate walrus.PaymentGate) *walrus.Downloader {
	return walrus.NewDownloader(walrus.DownloaderConfig{
		Endpoints:    a.cfg.Endpoints(),
		Fs:           a.fs,
		OutputDir:    a.cfg.OutputDir,
		Gate:         gate,
		EndpointPath: a.cfg.EndpointPath,
		Logger:       a.logger,
	})
}

func (a *app) toolService() (*tools.Service, error) {
	client, err := a.paymentClient()
	if err != nil {
		return nil, err
	}

	deps := tools.Dependencies{
		Uploader:   a.uploader(),
		Downloader: a.downloader(a.paymentGate(client)),
		DataPath:   a.cfg.DataPath,
		Fs:         a.fs,
		Logger:     a.logger,
	}
	if client != nil {
		deps.Resource = client
	}

	return tools.New(deps,
		tools.WithTimeout(a.cfg.ToolTimeout()),
		tools.WithInlineDownloads(a.cfg.InlineDownloads()),
	), nil
}

// serveUntilSignal runs start in the background and blocks until SIGINT or
// SIGTERM, then stops it within shutdownTimeout. A start failure returns at
// once.
func serveUntilSignal(logger *log.Logger, name string, start func() error, stop func(context.Context) error) error {
	failed := make(chan error, 1)
	go func() {
		if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, map[string]gfshutdown.Operation{
		name: func(ctx context.Context) error {
			logger.Info("shutting down", "server", name)
			return stop(ctx)
		},
	})

	select {
	case err := <-failed:
		return fmt.Errorf("%s: %w", name, err)
	case code := <-wait:
		if code != 0 {
			return fmt.Errorf("%s: shutdown exited with code %d", name, code)
		}
		return nil
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/mark3labs/mcp-walrus-x402/logging"
	"github.com/mark3labs/mcp-walrus-x402/walrus"
)

const (
	defaultUploadEpochs = 10
	maxUploadSize       = "50M"
)

// BlobFetcher reads blobs from Walrus without paying
type BlobFetcher interface {
	Fetch(ctx context.Context, blobID string) (*walrus.Blob, error)
}

// BlobUploader stores in-memory content on Walrus
type BlobUploader interface {
	UploadBytes(ctx context.Context, data []byte, fileName string, numEpochs int, sendTo string) (*walrus.UploadResult, error)
}

// Dependencies are the collaborators of a ResourceServer. A nil Facilitator
// talks HTTP to Config.FacilitatorURL; nil Walrus collaborators answer 503 on
// the routes needing them.
type Dependencies struct {
	Facilitator Facilitator
	Fetcher     BlobFetcher
	Uploader    BlobUploader
}

// ResourceServer serves the x402 gated resources
type ResourceServer struct {
	echo     *echo.Echo
	fetcher  BlobFetcher
	uploader BlobUploader
	logger   *log.Logger
}

// NewResourceServer builds the echo app: the price table of cfg gates
// /weather, /download and /download/:blobId while /upload and /health stay
// free.
func NewResourceServer(cfg *Config, deps Dependencies) (*ResourceServer, error) {
	if cfg.PayTo == "" || cfg.Network == "" {
		return nil, errors.New("resource server needs a payTo address and a network")
	}
	if cfg.Routes == nil {
		cfg.Routes = DefaultRoutes()
	}

	gate, err := PaymentMiddleware(cfg, deps.Facilitator)
	if err != nil {
		return nil, err
	}

	s := &ResourceServer{
		echo:     echo.New(),
		fetcher:  deps.Fetcher,
		uploader: deps.Uploader,
		logger:   logging.OrDefault(cfg.Logger),
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			s.logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(echoMiddleware.BodyLimit(maxUploadSize))
	e.Use(gate)

	e.GET("/health", s.health)
	e.GET("/weather", s.weather)
	e.GET("/download", s.downloadAccess)
	e.GET("/download/:blobId", s.download)
	e.POST("/upload", s.upload)

	return s, nil
}

// Handler exposes the echo app, mostly for tests
func (s *ResourceServer) Handler() http.Handler {
	return s.echo
}

// Start blocks serving addr until Shutdown
func (s *ResourceServer) Start(addr string) error {
	s.logger.Info("resource server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *ResourceServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *ResourceServer) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *ResourceServer) weather(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"report": map[string]any{
			"weather":     "sunny",
			"temperature": 70,
		},
	})
}

// downloadAccess is what payers of the Walrus download tool buy. The blob
// itself is read from the aggregator afterwards.
func (s *ResourceServer) downloadAccess(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"access":  "granted",
		"message": "Payment accepted, Walrus download unlocked",
	})
}

func (s *ResourceServer) download(c echo.Context) error {
	if s.fetcher == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Walrus downloads are not configured"})
	}

	blobID := c.Param("blobId")
	if blobID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No blob ID provided"})
	}

	blob, err := s.fetcher.Fetch(c.Request().Context(), blobID)
	if errors.Is(err, walrus.ErrInvalidBlobID) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		s.logger.Error("download failed", "blobId", blobID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	filename := blobID + walrus.ExtensionFromMime(blob.ContentType)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, blob.ContentType, blob.Data)
}

func (s *ResourceServer) upload(c echo.Context) error {
	if s.uploader == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Walrus uploads are not configured"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file provided"})
	}

	numEpochs := defaultUploadEpochs
	if v := c.FormValue("numEpochs"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "numEpochs must be a positive integer"})
		}
		numEpochs = n
	}

	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	// the publisher is told the MIME type by extension
	name := filepath.Base(fh.Filename)
	if filepath.Ext(name) == "" {
		name += mimetype.Detect(data).Extension()
	}

	result, err := s.uploader.UploadBytes(c.Request().Context(), data, name, numEpochs, "")
	if err != nil {
		s.logger.Error("upload failed", "file", name, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"blobId":   result.BlobID,
		"endEpoch": result.EndEpoch,
		"status":   result.Status,
	})
}

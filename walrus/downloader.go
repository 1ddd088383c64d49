package walrus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	x402 "github.com/mark3labs/mcp-walrus-x402"
	"github.com/mark3labs/mcp-walrus-x402/logging"
	"github.com/spf13/afero"
)

// PaymentGate performs the paid request that precedes a download
type PaymentGate interface {
	Get(ctx context.Context, path string) (*x402.Response, error)
}

// DownloaderConfig configures a Downloader. When Gate is nil no payment is
// made before downloading.
type DownloaderConfig struct {
	Endpoints  Endpoints
	HTTPClient *http.Client
	Fs         afero.Fs
	// OutputDir receives synthesized file names; "" is the working directory
	OutputDir    string
	Gate         PaymentGate
	EndpointPath string
	Logger       *log.Logger
}

// Downloader reads blobs from a Walrus aggregator
type Downloader struct {
	endpoints    Endpoints
	client       *http.Client
	fs           afero.Fs
	outputDir    string
	gate         PaymentGate
	endpointPath string
	logger       *log.Logger
}

func NewDownloader(cfg DownloaderConfig) *Downloader {
	d := &Downloader{
		endpoints:    cfg.Endpoints.withDefaults(),
		client:       cfg.HTTPClient,
		fs:           cfg.Fs,
		outputDir:    cfg.OutputDir,
		gate:         cfg.Gate,
		endpointPath: cfg.EndpointPath,
		logger:       logging.OrDefault(cfg.Logger),
	}
	if d.client == nil {
		d.client = http.DefaultClient
	}
	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	return d
}

// Endpoints returns the resolved Walrus endpoints
func (d *Downloader) Endpoints() Endpoints {
	return d.endpoints
}

// Download pays through the gate when one is configured, fetches the blob and
// writes it to outputPath (or a synthesized name in the output directory).
// Metadata is best effort and never fails the download.
//
// The payment answer is logged but not tied to the blob being fetched.
func (d *Downloader) Download(ctx context.Context, blobID, outputPath string) (*DownloadResult, error) {
	if err := ValidateBlobID(blobID); err != nil {
		return nil, err
	}

	d.logger.Info("downloading blob", "blobId", blobID, "url", d.endpoints.BlobURL(blobID))

	if d.gate != nil {
		if err := d.pay(ctx); err != nil {
			return nil, err
		}
	}

	blob, err := d.Fetch(ctx, blobID)
	if err != nil {
		return nil, err
	}

	path := outputPath
	if path == "" {
		path = d.synthesizePath(blobID, blob.ContentType)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := afero.WriteFile(d.fs, path, blob.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}

	d.logger.Info("file downloaded",
		"blobId", blobID,
		"path", path,
		"contentType", blob.ContentType,
		"size", humanize.Bytes(uint64(len(blob.Data))))

	result := &DownloadResult{
		FilePath:    path,
		BlobID:      blobID,
		ContentType: blob.ContentType,
		Size:        int64(len(blob.Data)),
	}

	metadata, err := d.Metadata(ctx, blobID)
	if err != nil {
		d.logger.Warn("continuing without metadata", "blobId", blobID, "err", err)
	} else {
		result.Metadata = metadata
	}

	return result, nil
}

func (d *Downloader) pay(ctx context.Context) error {
	resp, err := d.gate.Get(ctx, d.endpointPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	d.logger.Info("x402 response", "path", d.endpointPath, "status", resp.StatusCode, "body", truncate(string(resp.Body), 200))
	if !resp.OK() {
		return fmt.Errorf("%w: %s answered %d", ErrPaymentFailed, d.endpointPath, resp.StatusCode)
	}
	if resp.Settlement != nil {
		d.logger.Debug("payment settled", "tx", resp.Settlement.Transaction, "network", resp.Settlement.Network)
	}
	return nil
}

// Fetch GETs the blob bytes without paying or touching the filesystem. A
// missing Content-Type header is filled in by sniffing the content.
func (d *Downloader) Fetch(ctx context.Context, blobID string) (*Blob, error) {
	if err := ValidateBlobID(blobID); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoints.BlobURL(blobID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: opDownload, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	return &Blob{ID: blobID, ContentType: contentType, Data: data}, nil
}

// Metadata reads the aggregator's info document for a blob
func (d *Downloader) Metadata(ctx context.Context, blobID string) (map[string]any, error) {
	if err := ValidateBlobID(blobID); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoints.MetadataURL(blobID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrMetadataUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, fmt.Errorf("%w: empty body", ErrMetadataUnavailable)
	}

	var metadata map[string]any
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("%w: %v (body %q)", ErrMetadataUnavailable, err, truncate(string(body), 100))
	}
	return metadata, nil
}

// synthesizePath names a download after the first 8 characters of its id.
// Two concurrent downloads of the same blob share this name.
func (d *Downloader) synthesizePath(blobID, contentType string) string {
	prefix := blobID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return filepath.Join(d.outputDir, "downloaded-"+prefix+ExtensionFromMime(contentType))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package walrus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-walrus-x402/logging"
	"github.com/spf13/afero"
)

// UploaderConfig configures an Uploader. Zero values fall back to the public
// testnet endpoints, http.DefaultClient, the OS filesystem and os.TempDir.
type UploaderConfig struct {
	Endpoints  Endpoints
	HTTPClient *http.Client
	Fs         afero.Fs
	TempDir    string
	Logger     *log.Logger
}

// Uploader stores local files on Walrus through a publisher
type Uploader struct {
	endpoints Endpoints
	client    *http.Client
	fs        afero.Fs
	tempDir   string
	logger    *log.Logger
}

func NewUploader(cfg UploaderConfig) *Uploader {
	u := &Uploader{
		endpoints: cfg.Endpoints.withDefaults(),
		client:    cfg.HTTPClient,
		fs:        cfg.Fs,
		tempDir:   cfg.TempDir,
		logger:    logging.OrDefault(cfg.Logger),
	}
	if u.client == nil {
		u.client = http.DefaultClient
	}
	if u.fs == nil {
		u.fs = afero.NewOsFs()
	}
	if u.tempDir == "" {
		u.tempDir = os.TempDir()
	}
	return u
}

// Upload PUTs the file at filePath to the publisher for numEpochs epochs,
// optionally transferring the blob object to sendTo. Exactly one attempt is
// made.
func (u *Uploader) Upload(ctx context.Context, filePath string, numEpochs int, sendTo string) (*UploadResult, error) {
	if numEpochs <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidEpochs, numEpochs)
	}

	data, err := afero.ReadFile(u.fs, filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
		}
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}

	contentType := GetMimeType(filePath)

	q := url.Values{}
	q.Set("epochs", strconv.Itoa(numEpochs))
	if sendTo != "" {
		q.Set("send_object_to", sendTo)
	}
	target := u.endpoints.PublisherURL + "/v1/blobs?" + q.Encode()

	u.logger.Info("uploading file",
		"path", filePath,
		"mime", contentType,
		"size", humanize.Bytes(uint64(len(data))),
		"epochs", numEpochs)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: opUpload, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUploadFailed, err)
	}

	outcome, err := DecodeStoreResponse(body)
	if err != nil {
		return nil, err
	}
	result, err := NormalizeStoreOutcome(outcome, u.endpoints)
	if err != nil {
		return nil, err
	}

	u.logger.Info("upload complete", "blobId", result.BlobID, "status", result.Status, "endEpoch", result.EndEpoch)
	return result, nil
}

// UploadBytes stages data in a uniquely named temp file that keeps the
// extension of fileName, uploads it and removes the temp file whatever the
// outcome.
func (u *Uploader) UploadBytes(ctx context.Context, data []byte, fileName string, numEpochs int, sendTo string) (*UploadResult, error) {
	if numEpochs <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidEpochs, numEpochs)
	}

	if err := u.fs.MkdirAll(u.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	tmp := filepath.Join(u.tempDir, "walrus-"+uuid.NewString()+filepath.Ext(fileName))
	if err := afero.WriteFile(u.fs, tmp, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	u.logger.Debug("staged upload", "name", fileName, "tmp", tmp)

	defer func() {
		if err := u.fs.Remove(tmp); err != nil {
			u.logger.Warn("failed to clean up temp file", "tmp", tmp, "err", err)
		}
	}()

	return u.Upload(ctx, tmp, numEpochs, sendTo)
}

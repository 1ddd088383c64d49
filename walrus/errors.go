package walrus

import (
	"errors"
	"fmt"
)

var (
	ErrFileNotFound              = errors.New("file not found")
	ErrInvalidEpochs             = errors.New("numEpochs must be a positive integer")
	ErrInvalidBlobID             = errors.New("invalid blob id")
	ErrUnrecognizedResponseShape = errors.New("unrecognized publisher response shape")
	ErrPaymentFailed             = errors.New("payment failed")
	ErrUploadFailed              = errors.New("upload failed")
	ErrDownloadFailed            = errors.New("download failed")

	// ErrMetadataUnavailable is logged when the info endpoint cannot be
	// read. Download never returns it.
	ErrMetadataUnavailable = errors.New("blob metadata unavailable")
)

// StatusError is a non-200 answer from the publisher or the aggregator
type StatusError struct {
	Op         string // "upload" or "download"
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status: %d", e.Op, e.StatusCode)
}

// Is lets errors.Is match ErrUploadFailed and ErrDownloadFailed
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUploadFailed:
		return e.Op == opUpload
	case ErrDownloadFailed:
		return e.Op == opDownload
	}
	return false
}

const (
	opUpload   = "upload"
	opDownload = "download"
)

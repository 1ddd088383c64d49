package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-walrus-x402/walrus"
)

var ErrInvalidArguments = errors.New("invalid arguments")

// ArgumentError reports a tool argument that is missing or has the wrong type
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArguments
}

// Codes carried in the "code" field of error payloads
const (
	CodeFileNotFound              = "FileNotFound"
	CodeUploadFailed              = "UploadFailed"
	CodeDownloadFailed            = "DownloadFailed"
	CodeUnrecognizedResponseShape = "UnrecognizedResponseShape"
	CodePaymentFailed             = "PaymentFailed"
	CodeInvalidArguments          = "InvalidArguments"
	CodeTimeout                   = "Timeout"
	CodeInternalError             = "InternalError"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArguments),
		errors.Is(err, walrus.ErrInvalidEpochs),
		errors.Is(err, walrus.ErrInvalidBlobID):
		return CodeInvalidArguments
	// a deadline inside an upload, download or payment is still a timeout
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, walrus.ErrFileNotFound):
		return CodeFileNotFound
	case errors.Is(err, walrus.ErrUploadFailed):
		return CodeUploadFailed
	case errors.Is(err, walrus.ErrDownloadFailed):
		return CodeDownloadFailed
	case errors.Is(err, walrus.ErrUnrecognizedResponseShape):
		return CodeUnrecognizedResponseShape
	case errors.Is(err, walrus.ErrPaymentFailed):
		return CodePaymentFailed
	}
	return CodeInternalError
}

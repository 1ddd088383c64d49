package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-walrus-x402/walrus"
	"github.com/spf13/afero"
)

var errNotConfigured = errors.New("tool is not configured on this server")

// payload is the JSON object returned as the text content of every call
type payload map[string]any

func success(message string) payload {
	return payload{"status": "success", "message": message}
}

func failure(err error) payload {
	return payload{"status": "error", "code": errorCode(err), "message": err.Error()}
}

func (p payload) with(fields map[string]any) payload {
	for k, v := range fields {
		p[k] = v
	}
	return p
}

func (p payload) result() *mcp.CallToolResult {
	text, err := json.Marshal(p)
	if err != nil {
		return mcp.NewToolResultError(`{"status":"error","code":"InternalError","message":"unencodable result"}`)
	}
	if p["status"] == "error" {
		return mcp.NewToolResultError(string(text))
	}
	return mcp.NewToolResultText(string(text))
}

func uploadPayload(r *walrus.UploadResult) payload {
	return success("File uploaded to Walrus storage successfully").with(map[string]any{
		"blobId":      r.BlobID,
		"blobUrl":     r.BlobURL,
		"endEpoch":    r.EndEpoch,
		"suiUrl":      r.SuiURL,
		"suiRefType":  r.SuiRefType,
		"storeStatus": r.Status,
	})
}

func (s *Service) handleUpload(ctx context.Context, args arguments) payload {
	filePath, err := args.requiredString("filePath")
	if err != nil {
		return failure(err)
	}
	numEpochs, err := args.requiredCount("numEpochs")
	if err != nil {
		return failure(err)
	}
	sendTo, err := args.optionalString("sendTo")
	if err != nil {
		return failure(err)
	}
	if s.uploader == nil {
		return failure(errNotConfigured)
	}

	result, err := s.uploader.Upload(ctx, filePath, numEpochs, sendTo)
	if err != nil {
		s.logger.Error("upload failed", "path", filePath, "err", err)
		return failure(err).with(map[string]any{"filePath": filePath})
	}
	return uploadPayload(result).with(map[string]any{"filePath": filePath})
}

func (s *Service) handleUploadBase64(ctx context.Context, args arguments) payload {
	content, err := args.requiredString("fileContent")
	if err != nil {
		return failure(err)
	}
	fileName, err := args.requiredString("fileName")
	if err != nil {
		return failure(err)
	}
	numEpochs, err := args.requiredCount("numEpochs")
	if err != nil {
		return failure(err)
	}
	sendTo, err := args.optionalString("sendTo")
	if err != nil {
		return failure(err)
	}

	data, err := decodeBase64(content)
	if err != nil {
		return failure(&ArgumentError{Field: "fileContent", Reason: "must be base64 encoded"})
	}
	if s.uploader == nil {
		return failure(errNotConfigured)
	}

	result, err := s.uploader.UploadBytes(ctx, data, filepath.Base(fileName), numEpochs, sendTo)
	if err != nil {
		s.logger.Error("upload failed", "fileName", fileName, "err", err)
		return failure(err).with(map[string]any{"fileName": fileName})
	}
	return uploadPayload(result).with(map[string]any{"fileName": fileName})
}

// decodeBase64 accepts padded or unpadded, standard or URL-safe content,
// wrapped over any number of lines
func decodeBase64(content string) ([]byte, error) {
	compact := strings.Join(strings.Fields(content), "")
	var err error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		var data []byte
		if data, err = enc.DecodeString(compact); err == nil {
			return data, nil
		}
	}
	return nil, err
}

func (s *Service) handleDownload(ctx context.Context, args arguments) payload {
	blobID, err := args.requiredString("blobId")
	if err != nil {
		return failure(err)
	}
	outputPath, err := args.optionalString("outputPath")
	if err != nil {
		return failure(err)
	}
	if s.downloader == nil {
		return failure(errNotConfigured)
	}

	downloadURL := s.downloader.Endpoints().BlobURL(blobID)

	result, err := s.downloader.Download(ctx, blobID, outputPath)
	if err != nil {
		s.logger.Error("download failed", "blobId", blobID, "err", err)
		return failure(err).with(map[string]any{"blobId": blobID, "downloadUrl": downloadURL})
	}

	fields := map[string]any{
		"blobId":      result.BlobID,
		"contentType": result.ContentType,
		"size":        result.Size,
		"metadata":    result.Metadata,
		"downloadUrl": downloadURL,
	}

	if !s.inline {
		fields["filePath"] = result.FilePath
		return success("File downloaded from Walrus storage and saved locally.").with(fields)
	}

	data, err := afero.ReadFile(s.fs, result.FilePath)
	if err != nil {
		return failure(err).with(map[string]any{"blobId": blobID, "downloadUrl": downloadURL})
	}
	if err := s.fs.Remove(result.FilePath); err != nil {
		s.logger.Warn("failed to remove inline download", "path", result.FilePath, "err", err)
	}

	fields["fileContent"] = base64.StdEncoding.EncodeToString(data)
	fields["suggestedFilename"] = filepath.Base(result.FilePath)
	if outputPath != "" {
		fields["originalOutputPath"] = outputPath
	}
	return success("File downloaded from Walrus storage successfully. File content included as Base64 data.").with(fields)
}

func (s *Service) handleGetData(ctx context.Context, args arguments) payload {
	if s.resource == nil {
		return failure(errNotConfigured)
	}

	url := strings.TrimRight(s.resource.BaseURL(), "/") + "/" + strings.TrimLeft(s.dataPath, "/")

	resp, err := s.resource.Get(ctx, s.dataPath)
	if err != nil {
		return failure(fmt.Errorf("%w: %w", walrus.ErrPaymentFailed, err)).with(map[string]any{"url": url})
	}
	if !resp.OK() {
		err := fmt.Errorf("%w: resource server answered %d", walrus.ErrPaymentFailed, resp.StatusCode)
		return failure(err).with(map[string]any{
			"url":        url,
			"statusCode": resp.StatusCode,
			"body":       string(resp.Body),
		})
	}

	fields := map[string]any{
		"url":         url,
		"statusCode":  resp.StatusCode,
		"contentType": resp.ContentType,
	}

	var data any
	if strings.Contains(resp.ContentType, "json") && json.Unmarshal(resp.Body, &data) == nil {
		fields["data"] = data
	} else {
		fields["data"] = string(resp.Body)
	}
	if resp.Settlement != nil {
		fields["transaction"] = resp.Settlement.Transaction
		fields["network"] = resp.Settlement.Network
	}
	return success("Data fetched from the resource server").with(fields)
}

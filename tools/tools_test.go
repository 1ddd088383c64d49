package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	x402 "github.com/mark3labs/mcp-walrus-x402"
	"github.com/mark3labs/mcp-walrus-x402/logging"
	"github.com/mark3labs/mcp-walrus-x402/walrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	calls    int
	path     string
	name     string
	data     []byte
	epochs   int
	sendTo   string
	err      error
	deadline bool
}

func (f *fakeUploader) result() *walrus.UploadResult {
	return &walrus.UploadResult{
		Status:     walrus.StatusNewlyCreated,
		BlobID:     "abc123",
		EndEpoch:   99,
		SuiRefType: "Associated Sui Object",
		SuiRef:     "0xobj",
		BlobURL:    walrus.DefaultAggregatorURL + "/v1/blobs/abc123",
		SuiURL:     "https://suiscan.xyz/testnet/object/0xobj",
	}
}

func (f *fakeUploader) Upload(ctx context.Context, filePath string, numEpochs int, sendTo string) (*walrus.UploadResult, error) {
	f.calls++
	f.path, f.epochs, f.sendTo = filePath, numEpochs, sendTo
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.result(), nil
}

func (f *fakeUploader) UploadBytes(ctx context.Context, data []byte, fileName string, numEpochs int, sendTo string) (*walrus.UploadResult, error) {
	f.calls++
	f.name, f.data, f.epochs, f.sendTo = fileName, data, numEpochs, sendTo
	if f.err != nil {
		return nil, f.err
	}
	return f.result(), nil
}

type fakeDownloader struct {
	fs    afero.Fs
	calls int
	err   error
}

func (f *fakeDownloader) Download(ctx context.Context, blobID, outputPath string) (*walrus.DownloadResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if outputPath == "" {
		outputPath = "downloaded-" + blobID + ".txt"
	}
	if err := afero.WriteFile(f.fs, outputPath, []byte("hello walrus"), 0o644); err != nil {
		return nil, err
	}
	return &walrus.DownloadResult{
		FilePath:    outputPath,
		BlobID:      blobID,
		ContentType: "text/plain",
		Size:        12,
	}, nil
}

func (f *fakeDownloader) Endpoints() walrus.Endpoints {
	return walrus.DefaultEndpoints()
}

type fakeResource struct {
	resp *x402.Response
	err  error
	path string
}

func (f *fakeResource) Get(ctx context.Context, path string) (*x402.Response, error) {
	f.path = path
	return f.resp, f.err
}

func (f *fakeResource) BaseURL() string { return "http://localhost:4021" }

func callTool(t *testing.T, svc *Service, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	res, err := svc.Call(context.Background(), name, args)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out, res.IsError
}

func newService(deps Dependencies, opts ...Option) *Service {
	deps.Logger = logging.Discard()
	return New(deps, opts...)
}

func TestUploadTool(t *testing.T) {
	up := &fakeUploader{}
	svc := newService(Dependencies{Uploader: up})

	out, isErr := callTool(t, svc, ToolUpload, map[string]any{
		"filePath":  "/tmp/test.txt",
		"numEpochs": float64(5),
		"sendTo":    "0xfriend",
	})
	assert.False(t, isErr)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "abc123", out["blobId"])
	assert.Equal(t, float64(99), out["endEpoch"])
	assert.Equal(t, "Newly created", out["storeStatus"])
	assert.Equal(t, "https://suiscan.xyz/testnet/object/0xobj", out["suiUrl"])
	assert.NotContains(t, out, "code")

	assert.Equal(t, "/tmp/test.txt", up.path)
	assert.Equal(t, 5, up.epochs)
	assert.Equal(t, "0xfriend", up.sendTo)
	assert.True(t, up.deadline, "tool calls run under a deadline")
}

func TestUploadToolInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing numEpochs", map[string]any{"filePath": "/tmp/test.txt"}},
		{"missing filePath", map[string]any{"numEpochs": float64(5)}},
		{"string numEpochs", map[string]any{"filePath": "/tmp/test.txt", "numEpochs": "5"}},
		{"fractional numEpochs", map[string]any{"filePath": "/tmp/test.txt", "numEpochs": 1.5}},
		{"zero numEpochs", map[string]any{"filePath": "/tmp/test.txt", "numEpochs": float64(0)}},
		{"numeric sendTo", map[string]any{"filePath": "/tmp/test.txt", "numEpochs": float64(1), "sendTo": 7}},
		{"no arguments", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{}
			svc := newService(Dependencies{Uploader: up})

			out, isErr := callTool(t, svc, ToolUpload, tt.args)
			assert.True(t, isErr)
			assert.Equal(t, "error", out["status"])
			assert.Equal(t, CodeInvalidArguments, out["code"])
			assert.Zero(t, up.calls, "no network call on invalid arguments")
		})
	}
}

func TestUploadToolErrors(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: /tmp/missing", walrus.ErrFileNotFound), CodeFileNotFound},
		{&walrus.StatusError{Op: "upload", StatusCode: 500}, CodeUploadFailed},
		{walrus.ErrUnrecognizedResponseShape, CodeUnrecognizedResponseShape},
		{context.DeadlineExceeded, CodeTimeout},
		{fmt.Errorf("%w: %w", walrus.ErrUploadFailed, context.DeadlineExceeded), CodeTimeout},
		{errors.New("disk on fire"), CodeInternalError},
	}
	for _, tt := range tests {
		svc := newService(Dependencies{Uploader: &fakeUploader{err: tt.err}})
		out, isErr := callTool(t, svc, ToolUpload, map[string]any{"filePath": "/tmp/x", "numEpochs": float64(1)})
		assert.True(t, isErr)
		assert.Equal(t, tt.code, out["code"], tt.err.Error())
		assert.Equal(t, tt.err.Error(), out["message"])
	}
}

func TestUploadBase64Tool(t *testing.T) {
	up := &fakeUploader{}
	svc := newService(Dependencies{Uploader: up})

	out, isErr := callTool(t, svc, ToolUploadBase64, map[string]any{
		"fileContent": base64.StdEncoding.EncodeToString([]byte("hello")),
		"fileName":    "../notes.md",
		"numEpochs":   float64(2),
	})
	assert.False(t, isErr)
	assert.Equal(t, "abc123", out["blobId"])
	assert.Equal(t, "../notes.md", out["fileName"])
	assert.Equal(t, "notes.md", up.name)
	assert.Equal(t, []byte("hello"), up.data)
	assert.Equal(t, 2, up.epochs)

	out, isErr = callTool(t, svc, ToolUploadBase64, map[string]any{
		"fileContent": "%%%",
		"fileName":    "a.txt",
		"numEpochs":   float64(2),
	})
	assert.True(t, isErr)
	assert.Equal(t, CodeInvalidArguments, out["code"])
	assert.Equal(t, 1, up.calls)
}

func TestUploadBase64ToolEncodings(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0xfe, 'h', 'i'}
	cases := map[string]string{
		"Standard":   base64.StdEncoding.EncodeToString(raw),
		"Unpadded":   base64.RawStdEncoding.EncodeToString(raw),
		"URLSafe":    base64.URLEncoding.EncodeToString(raw),
		"URLSafeRaw": base64.RawURLEncoding.EncodeToString(raw),
		"Wrapped":    "+//+\naGk=\r\n",
		"Spaced":     "  +//+ aGk=  ",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			up := &fakeUploader{}
			svc := newService(Dependencies{Uploader: up})
			out, isErr := callTool(t, svc, ToolUploadBase64, map[string]any{
				"fileContent": content,
				"fileName":    "blob.bin",
				"numEpochs":   float64(1),
			})
			require.False(t, isErr, out)
			assert.Equal(t, raw, up.data)
		})
	}
}

func TestDownloadTool(t *testing.T) {
	fs := afero.NewMemMapFs()
	down := &fakeDownloader{fs: fs}
	svc := newService(Dependencies{Downloader: down, Fs: fs})

	out, isErr := callTool(t, svc, ToolDownload, map[string]any{"blobId": "abc123", "outputPath": "/tmp/out.txt"})
	assert.False(t, isErr)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, "/tmp/out.txt", out["filePath"])
	assert.Equal(t, "text/plain", out["contentType"])
	assert.Equal(t, float64(12), out["size"])
	assert.Nil(t, out["metadata"])
	assert.Equal(t, walrus.DefaultAggregatorURL+"/v1/blobs/abc123", out["downloadUrl"])
	assert.NotContains(t, out, "fileContent")

	exists, err := afero.Exists(fs, "/tmp/out.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDownloadToolInline(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := newService(Dependencies{Downloader: &fakeDownloader{fs: fs}, Fs: fs}, WithInlineDownloads(true))

	out, isErr := callTool(t, svc, ToolDownload, map[string]any{"blobId": "abc123"})
	assert.False(t, isErr)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("hello walrus")), out["fileContent"])
	assert.Equal(t, "downloaded-abc123.txt", out["suggestedFilename"])
	assert.NotContains(t, out, "filePath")

	exists, err := afero.Exists(fs, "downloaded-abc123.txt")
	require.NoError(t, err)
	assert.False(t, exists, "inline downloads leave nothing behind")
}

func TestDownloadToolErrors(t *testing.T) {
	down := &fakeDownloader{fs: afero.NewMemMapFs(), err: fmt.Errorf("%w: /download answered 402", walrus.ErrPaymentFailed)}
	svc := newService(Dependencies{Downloader: down})

	out, isErr := callTool(t, svc, ToolDownload, map[string]any{"blobId": "abc123"})
	assert.True(t, isErr)
	assert.Equal(t, CodePaymentFailed, out["code"])
	assert.Equal(t, "abc123", out["blobId"])
	assert.Equal(t, walrus.DefaultAggregatorURL+"/v1/blobs/abc123", out["downloadUrl"])

	out, _ = callTool(t, svc, ToolDownload, map[string]any{})
	assert.Equal(t, CodeInvalidArguments, out["code"])
	assert.Equal(t, 1, down.calls)

	down.err = &walrus.StatusError{Op: "download", StatusCode: 404}
	out, _ = callTool(t, svc, ToolDownload, map[string]any{"blobId": "nope"})
	assert.Equal(t, CodeDownloadFailed, out["code"])
	assert.Equal(t, "download failed with status: 404", out["message"])
}

func TestGetDataTool(t *testing.T) {
	res := &fakeResource{resp: &x402.Response{
		StatusCode:  http.StatusOK,
		Body:        []byte(`{"report":{"weather":"sunny","temperature":70}}`),
		ContentType: "application/json; charset=UTF-8",
		Settlement:  &x402.SettlementResponse{Success: true, Transaction: "0xtx", Network: "base-sepolia"},
	}}
	svc := newService(Dependencies{Resource: res, DataPath: "/weather"})

	out, isErr := callTool(t, svc, ToolGetData, nil)
	assert.False(t, isErr)
	assert.Equal(t, "/weather", res.path)
	assert.Equal(t, "http://localhost:4021/weather", out["url"])
	assert.Equal(t, "0xtx", out["transaction"])
	data, ok := out["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sunny", data["report"].(map[string]any)["weather"])
}

func TestGetDataToolFailures(t *testing.T) {
	res := &fakeResource{resp: &x402.Response{StatusCode: http.StatusPaymentRequired, Body: []byte(`{"error":"X-PAYMENT header is required"}`)}}
	svc := newService(Dependencies{Resource: res})

	out, isErr := callTool(t, svc, ToolGetData, nil)
	assert.True(t, isErr)
	assert.Equal(t, CodePaymentFailed, out["code"])
	assert.Equal(t, float64(402), out["statusCode"])

	res.resp, res.err = nil, x402.ErrAmountExceedsLimit
	out, _ = callTool(t, svc, ToolGetData, nil)
	assert.Equal(t, CodePaymentFailed, out["code"])
	assert.Contains(t, out["message"], "exceeds")
}

func TestUnconfiguredTools(t *testing.T) {
	svc := newService(Dependencies{})
	for _, name := range []string{ToolUpload, ToolDownload, ToolGetData} {
		args := map[string]any{"filePath": "/a", "numEpochs": float64(1), "blobId": "b"}
		out, isErr := callTool(t, svc, name, args)
		assert.True(t, isErr, name)
		assert.Equal(t, CodeInternalError, out["code"], name)
	}

	_, err := svc.Call(context.Background(), "no-such-tool", nil)
	assert.Error(t, err)
}

func TestToolTimeout(t *testing.T) {
	res := &fakeResource{}
	svc := newService(Dependencies{Resource: blockingResource{res}}, WithTimeout(20*time.Millisecond))

	out, isErr := callTool(t, svc, ToolGetData, nil)
	assert.True(t, isErr)
	assert.Equal(t, CodeTimeout, out["code"])
	assert.Contains(t, out["message"], context.DeadlineExceeded.Error())
}

func TestSlowWalrusTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/slow.txt", []byte("slow"), 0o644))

	endpoints := walrus.Endpoints{PublisherURL: srv.URL, AggregatorURL: srv.URL}
	svc := newService(Dependencies{
		Uploader:   walrus.NewUploader(walrus.UploaderConfig{Endpoints: endpoints, Fs: fs, Logger: logging.Discard()}),
		Downloader: walrus.NewDownloader(walrus.DownloaderConfig{Endpoints: endpoints, Fs: fs, Logger: logging.Discard()}),
		Fs:         fs,
	}, WithTimeout(50*time.Millisecond))

	out, isErr := callTool(t, svc, ToolUpload, map[string]any{"filePath": "/tmp/slow.txt", "numEpochs": float64(1)})
	assert.True(t, isErr)
	assert.Equal(t, CodeTimeout, out["code"], out["message"])

	out, isErr = callTool(t, svc, ToolDownload, map[string]any{"blobId": "abc123"})
	assert.True(t, isErr)
	assert.Equal(t, CodeTimeout, out["code"], out["message"])
}

type blockingResource struct{ *fakeResource }

func (b blockingResource) Get(ctx context.Context, path string) (*x402.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// fakeWalrus is a publisher and aggregator in one: every blob is "abc123"
func fakeWalrus(t *testing.T) *httptest.Server {
	t.Helper()
	var stored []byte
	var storedType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/v1/blobs":
			stored, _ = io.ReadAll(r.Body)
			storedType = r.Header.Get("Content-Type")
			_, _ = w.Write([]byte(`{"newlyCreated":{"blobObject":{"id":"0xobj","blobId":"abc123","storage":{"endEpoch":` + r.URL.Query().Get("epochs") + `}}}}`))
		case r.URL.Path == "/v1/blobs/abc123":
			w.Header().Set("Content-Type", storedType)
			_, _ = w.Write(stored)
		case strings.HasSuffix(r.URL.Path, "/info"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUploadThenDownloadThroughTools(t *testing.T) {
	srv := fakeWalrus(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/test.txt", []byte("round trip"), 0o644))

	endpoints := walrus.Endpoints{PublisherURL: srv.URL, AggregatorURL: srv.URL}
	svc := newService(Dependencies{
		Uploader:   walrus.NewUploader(walrus.UploaderConfig{Endpoints: endpoints, Fs: fs, Logger: logging.Discard()}),
		Downloader: walrus.NewDownloader(walrus.DownloaderConfig{Endpoints: endpoints, Fs: fs, Logger: logging.Discard()}),
		Fs:         fs,
	})

	out, isErr := callTool(t, svc, ToolUpload, map[string]any{"filePath": "/tmp/test.txt", "numEpochs": float64(5)})
	require.False(t, isErr, out)
	assert.Equal(t, "abc123", out["blobId"])
	assert.Equal(t, float64(5), out["endEpoch"])

	out, isErr = callTool(t, svc, ToolDownload, map[string]any{"blobId": "abc123", "outputPath": "/tmp/out.txt"})
	require.False(t, isErr, out)
	assert.Equal(t, "text/plain", out["contentType"])
	assert.Nil(t, out["metadata"], "metadata failure is not fatal")

	got, err := afero.ReadFile(fs, "/tmp/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "round trip", string(got))
}

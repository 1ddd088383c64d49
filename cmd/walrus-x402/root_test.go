package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-walrus-x402/logging"
	"github.com/mark3labs/mcp-walrus-x402/tools"
	"github.com/mark3labs/mcp-walrus-x402/walrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWalrus is a publisher and aggregator holding blobs in memory
type fakeWalrus struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string
}

func newFakeWalrus(t *testing.T) *httptest.Server {
	f := &fakeWalrus{blobs: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeWalrus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPut && r.URL.Path == "/v1/blobs":
		data, _ := io.ReadAll(r.Body)
		f.blobs["abc123"] = data
		f.types["abc123"] = r.Header.Get("Content-Type")
		fmt.Fprint(w, `{"newlyCreated":{"blobObject":{"id":"0xobject","blobId":"abc123","storage":{"endEpoch":42}}}}`)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/info"):
		http.NotFound(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/blobs/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/blobs/")
		data, ok := f.blobs[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", f.types[id])
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// unset removes names for the duration of the test
func unset(t *testing.T, names ...string) {
	for _, name := range names {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

// isolate points the configuration at srv and clears any payer keys
func isolate(t *testing.T, srv *httptest.Server) {
	unset(t, "PRIVATE_KEY", "MNEMONIC", "KEYSTORE_PATH", "SOLANA_PRIVATE_KEY",
		"RESOURCE_SERVER_URL", "ENDPOINT_PATH", "WALRUS_OUTPUT_DIR", "TOOL_TIMEOUT", "DEBUG")
	t.Setenv("WALRUS_PUBLISHER_URL", srv.URL)
	t.Setenv("WALRUS_AGGREGATOR_URL", srv.URL)
}

func run(t *testing.T, fs afero.Fs, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(fs, logging.Discard())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append(args, "--env-file", "/nonexistent/.env"))
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand(afero.NewMemMapFs(), logging.Discard())
	require.NotNil(t, cmd)
	assert.Equal(t, "walrus-x402", cmd.Use)
	require.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Use)
	}
	assert.Equal(t, []string{
		"mcp",
		"resource-server",
		"upload <file>",
		"download <blobId>",
		"demo",
		"call",
		"version",
	}, names)
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT", "-1")

	out, err := run(t, afero.NewMemMapFs(), "version")
	require.NoError(t, err)
	assert.Equal(t, tools.ServerName+" "+tools.ServerVersion+"\n", out)
}

func TestUploadThenDownloadCommands(t *testing.T) {
	srv := newFakeWalrus(t)
	isolate(t, srv)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/hello.txt", []byte("hello walrus"), 0o644))

	out, err := run(t, fs, "upload", "/data/hello.txt", "--epochs", "3")
	require.NoError(t, err)

	var uploaded walrus.UploadResult
	require.NoError(t, json.Unmarshal([]byte(out), &uploaded))
	assert.Equal(t, "abc123", uploaded.BlobID)
	assert.Equal(t, int64(42), uploaded.EndEpoch)
	assert.Equal(t, "Newly created", uploaded.Status)

	out, err = run(t, fs, "download", "abc123", "--output", "/data/out.txt")
	require.NoError(t, err)

	var downloaded walrus.DownloadResult
	require.NoError(t, json.Unmarshal([]byte(out), &downloaded))
	assert.Equal(t, "/data/out.txt", downloaded.FilePath)
	assert.Equal(t, "text/plain", downloaded.ContentType)
	assert.Nil(t, downloaded.Metadata)

	data, err := afero.ReadFile(fs, "/data/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello walrus", string(data))
}

func TestUploadCommandRequiresEpochs(t *testing.T) {
	srv := newFakeWalrus(t)
	isolate(t, srv)

	_, err := run(t, afero.NewMemMapFs(), "upload", "/data/hello.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epochs")
}

func TestUploadCommandMissingFile(t *testing.T) {
	srv := newFakeWalrus(t)
	isolate(t, srv)

	_, err := run(t, afero.NewMemMapFs(), "upload", "/data/missing.txt", "--epochs", "3")
	assert.ErrorIs(t, err, walrus.ErrFileNotFound)
}

func TestDemoCommand(t *testing.T) {
	srv := newFakeWalrus(t)
	isolate(t, srv)

	fs := afero.NewMemMapFs()
	out, err := run(t, fs, "demo", "--dir", "/samples")
	require.NoError(t, err)
	assert.Contains(t, out, `"upload"`)
	assert.Contains(t, out, `"download"`)

	sample, err := afero.ReadFile(fs, "/samples/sample.txt")
	require.NoError(t, err)
	downloaded, err := afero.ReadFile(fs, "/samples/downloaded_sample.txt")
	require.NoError(t, err)
	assert.Equal(t, sample, downloaded)
}

func TestResourceServerCommandValidates(t *testing.T) {
	unset(t, "FACILITATOR_URL", "ADDRESS", "TOOL_TIMEOUT", "DEBUG")

	_, err := run(t, afero.NewMemMapFs(), "resource-server")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FACILITATOR_URL")
	assert.Contains(t, err.Error(), "ADDRESS")
}

func TestMCPCommandRejectsUnknownTransport(t *testing.T) {
	srv := newFakeWalrus(t)
	isolate(t, srv)

	_, err := run(t, afero.NewMemMapFs(), "mcp", "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestCallCommand(t *testing.T) {
	walrusSrv := newFakeWalrus(t)
	isolate(t, walrusSrv)

	fs := afero.NewMemMapFs()
	endpoints := walrus.Endpoints{PublisherURL: walrusSrv.URL, AggregatorURL: walrusSrv.URL, SuiNetwork: "testnet"}
	svc := tools.New(tools.Dependencies{
		Uploader:   walrus.NewUploader(walrus.UploaderConfig{Endpoints: endpoints, Fs: fs, Logger: logging.Discard()}),
		Downloader: walrus.NewDownloader(walrus.DownloaderConfig{Endpoints: endpoints, Fs: fs, OutputDir: "/out", Logger: logging.Discard()}),
		Fs:         fs,
		Logger:     logging.Discard(),
	})
	mcpSrv := httptest.NewServer(tools.NewHTTPHandler(svc))
	t.Cleanup(mcpSrv.Close)

	out, err := run(t, fs, "call", "--server", mcpSrv.URL, "--file", "/tmp/test.txt")
	require.NoError(t, err)

	var responses []map[string]any
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var r map[string]any
		require.NoError(t, dec.Decode(&r))
		responses = append(responses, r)
	}
	require.Len(t, responses, 4)
	assert.Equal(t, tools.ToolGetData, responses[0]["tool"])
	assert.Equal(t, tools.ToolUpload, responses[1]["tool"])
	assert.Equal(t, tools.ToolDownload, responses[2]["tool"])
	assert.Equal(t, tools.ToolDownload, responses[3]["tool"])

	getData := responses[0]["response"].(map[string]any)
	assert.Equal(t, "error", getData["status"])

	for _, r := range responses[1:] {
		assert.Equal(t, "success", r["response"].(map[string]any)["status"])
	}

	original, err := afero.ReadFile(fs, "/tmp/test.txt")
	require.NoError(t, err)
	downloaded, err := afero.ReadFile(fs, callOutputPath)
	require.NoError(t, err)
	assert.Equal(t, original, downloaded)
}

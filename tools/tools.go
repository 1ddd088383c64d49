// Package tools exposes the Walrus and x402 operations as MCP tools.
//
// Every tool validates its arguments before touching the network and answers
// with a JSON text payload carrying "status" ("success" or "error"). Errors
// never escape to the MCP transport.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	x402 "github.com/mark3labs/mcp-walrus-x402"
	"github.com/mark3labs/mcp-walrus-x402/logging"
	"github.com/mark3labs/mcp-walrus-x402/walrus"
	"github.com/spf13/afero"
)

const (
	ServerName    = "x402 & walrus MCP Server"
	ServerVersion = "1.0.0"

	ToolUpload       = "upload-file-to-walrus"
	ToolUploadBase64 = "upload-base64-file-to-walrus"
	ToolDownload     = "download-file-from-walrus-and-pay-USDC-via-x402"
	ToolGetData      = "get-data-from-resource-server"

	DefaultTimeout  = 60 * time.Second
	defaultDataPath = "/weather"
)

// BlobUploader stores files on Walrus
type BlobUploader interface {
	Upload(ctx context.Context, filePath string, numEpochs int, sendTo string) (*walrus.UploadResult, error)
	UploadBytes(ctx context.Context, data []byte, fileName string, numEpochs int, sendTo string) (*walrus.UploadResult, error)
}

// BlobDownloader pays for and fetches Walrus blobs
type BlobDownloader interface {
	Download(ctx context.Context, blobID, outputPath string) (*walrus.DownloadResult, error)
	Endpoints() walrus.Endpoints
}

// ResourceFetcher reads from the x402 gated resource server
type ResourceFetcher interface {
	Get(ctx context.Context, path string) (*x402.Response, error)
	BaseURL() string
}

// Dependencies are the operations behind the tools. A nil collaborator
// makes its tools answer an InternalError payload.
type Dependencies struct {
	Uploader   BlobUploader
	Downloader BlobDownloader
	Resource   ResourceFetcher

	// DataPath is fetched by get-data-from-resource-server
	DataPath string

	// Fs holds downloaded files; only read back in inline mode
	Fs     afero.Fs
	Logger *log.Logger
}

// Option configures a Service
type Option func(*Service)

// WithTimeout bounds each tool call
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithInlineDownloads returns downloads base64 encoded in the payload and
// removes the local copy, for hosts without a usable filesystem
func WithInlineDownloads(inline bool) Option {
	return func(s *Service) {
		s.inline = inline
	}
}

// Service owns the MCP server and its tools
type Service struct {
	uploader   BlobUploader
	downloader BlobDownloader
	resource   ResourceFetcher
	dataPath   string
	fs         afero.Fs
	logger     *log.Logger

	timeout time.Duration
	inline  bool

	mcp      *server.MCPServer
	handlers map[string]server.ToolHandlerFunc
}

func New(deps Dependencies, opts ...Option) *Service {
	s := &Service{
		uploader:   deps.Uploader,
		downloader: deps.Downloader,
		resource:   deps.Resource,
		dataPath:   deps.DataPath,
		fs:         deps.Fs,
		logger:     logging.OrDefault(deps.Logger),
		timeout:    DefaultTimeout,
		handlers:   make(map[string]server.ToolHandlerFunc),
	}
	if s.dataPath == "" {
		s.dataPath = defaultDataPath
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.register()
	return s
}

// MCPServer returns the underlying server for transports
func (s *Service) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Service) register() {
	s.addTool(
		mcp.NewTool(ToolUpload,
			mcp.WithDescription("Upload a local file to Walrus storage"),
			mcp.WithString("filePath", mcp.Required(), mcp.Description("Path of the file to upload")),
			mcp.WithNumber("numEpochs", mcp.Required(), mcp.Description("Number of epochs to store the file")),
			mcp.WithString("sendTo", mcp.Description("Optional address receiving the blob object")),
		),
		s.handleUpload,
	)

	s.addTool(
		mcp.NewTool(ToolUploadBase64,
			mcp.WithDescription("Upload base64 encoded file content to Walrus storage"),
			mcp.WithString("fileContent", mcp.Required(), mcp.Description("Base64 encoded file content")),
			mcp.WithString("fileName", mcp.Required(), mcp.Description("Name of the file including extension")),
			mcp.WithNumber("numEpochs", mcp.Required(), mcp.Description("Number of epochs to store the file")),
			mcp.WithString("sendTo", mcp.Description("Optional address receiving the blob object")),
		),
		s.handleUploadBase64,
	)

	s.addTool(
		mcp.NewTool(ToolDownload,
			mcp.WithDescription("Download a file from Walrus decentralized storage, paying USDC through the x402 gateway first. "+
				"The file is saved to outputPath or to a name derived from the blob id."),
			mcp.WithString("blobId", mcp.Required(), mcp.Description("The blob ID of the file to download")),
			mcp.WithString("outputPath", mcp.Description("Optional output path for the downloaded file")),
		),
		s.handleDownload,
	)

	s.addTool(
		mcp.NewTool(ToolGetData,
			mcp.WithDescription("Get data from the resource server (in this example, the weather), paying through x402"),
		),
		s.handleGetData,
	)
}

type toolFunc func(ctx context.Context, args arguments) payload

func (s *Service) addTool(tool mcp.Tool, fn toolFunc) {
	h := s.guard(fn)
	s.handlers[tool.Name] = h
	s.mcp.AddTool(tool, h)
}

// guard applies the per-call deadline and turns the payload into a result
func (s *Service) guard(fn toolFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		start := time.Now()
		p := fn(ctx, arguments(req.GetArguments()))
		s.logger.Info("tool call",
			"tool", req.Params.Name,
			"status", p["status"],
			"code", p["code"],
			"elapsed", time.Since(start).Round(time.Millisecond))
		return p.result(), nil
	}
}

// Call runs a tool in process, bypassing any transport
func (s *Service) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return h(ctx, req)
}

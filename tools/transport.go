package tools

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/mark3labs/mcp-go/server"
)

// JSON-RPC error codes used outside of mcp-go
const (
	codeMethodNotAllowed = -32000
	codeInternalError    = -32603
)

type rpcError struct {
	JSONRPC string `json:"jsonrpc"`
	Error   struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID any `json:"id"`
}

func newRPCError(code int, message string) rpcError {
	e := rpcError{JSONRPC: "2.0"}
	e.Error.Code = code
	e.Error.Message = message
	return e
}

// ServeStdio speaks MCP over stdin/stdout until ctx is done or stdin closes
func ServeStdio(ctx context.Context, svc *Service, stdin io.Reader, stdout io.Writer) error {
	svc.logger.Info("serving MCP over stdio", "server", ServerName, "version", ServerVersion)
	return server.NewStdioServer(svc.mcp).Listen(ctx, stdin, stdout)
}

// NewHTTPHandler hosts the tools on a stateless streamable HTTP endpoint.
// POST /mcp carries JSON-RPC; GET and DELETE /mcp are refused because no
// sessions exist. GET /health reports liveness.
func NewHTTPHandler(svc *Service) *echo.Echo {
	streamable := server.NewStreamableHTTPServer(svc.mcp, server.WithStateLess(true))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		}

		switch {
		case code == http.StatusMethodNotAllowed:
			_ = c.JSON(code, newRPCError(codeMethodNotAllowed, "Method not allowed."))
		case code >= http.StatusInternalServerError:
			svc.logger.Error("mcp request failed", "path", c.Request().URL.Path, "err", err)
			_ = c.JSON(http.StatusInternalServerError, newRPCError(codeInternalError, "Internal server error"))
		default:
			_ = c.JSON(code, map[string]any{"error": http.StatusText(code)})
		}
	}

	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			svc.logger.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.POST("/mcp", echo.WrapHandler(streamable))

	notAllowed := func(c echo.Context) error {
		return c.JSON(http.StatusMethodNotAllowed, newRPCError(codeMethodNotAllowed, "Method not allowed."))
	}
	e.GET("/mcp", notAllowed)
	e.DELETE("/mcp", notAllowed)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	return e
}

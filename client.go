package x402

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-walrus-x402/logging"
)

const defaultHTTPTimeout = 2 * time.Minute

// Client issues GET requests against one resource server, paying for gated
// paths through a Transport.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	transport  *Transport
	logger     *log.Logger
}

// ClientConfig configures the Client. Signers, budget and event callbacks are
// passed through to the underlying Transport.
type ClientConfig struct {
	BaseURL string
	TransportConfig

	// Timeout for a whole request including the paid retry
	Timeout time.Duration
}

// Response is a fully read resource server answer
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
	// Settlement is set when the server attached an X-PAYMENT-RESPONSE header
	Settlement *SettlementResponse
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// NewClient creates a payment-aware resource client
func NewClient(cfg ClientConfig, opts ...TransportOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", cfg.BaseURL)
	}

	transport, err := NewTransport(cfg.TransportConfig, opts...)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		transport:  transport,
		logger:     logging.OrDefault(cfg.Logger),
	}, nil
}

// BaseURL returns the resource server origin
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Metrics returns the spend recorded so far
func (c *Client) Metrics() BudgetMetrics {
	return c.transport.Metrics()
}

// Get fetches path relative to the base URL. Non-2xx answers are returned
// as a Response, not an error; the caller decides what they mean.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	target := c.baseURL.String() + "/" + strings.TrimLeft(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if h := resp.Header.Get(HeaderPaymentResponse); h != "" {
		if settlement, err := DecodeSettlement(h); err == nil {
			out.Settlement = settlement
		}
	}

	c.logger.Debug("resource response", "url", target, "status", resp.StatusCode, "bytes", len(body))
	return out, nil
}

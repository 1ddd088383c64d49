package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Facilitator interface for payment verification and settlement
type Facilitator interface {
	Verify(ctx context.Context, payment *PaymentPayload, requirement *PaymentRequirement) (*VerifyResponse, error)
	Settle(ctx context.Context, payment *PaymentPayload, requirement *PaymentRequirement) (*SettleResponse, error)
	Supported(ctx context.Context) ([]SupportedKind, error)
}

// SupportedKind represents a supported payment scheme/network combination.
// Extra carries network specific data such as the Solana feePayer.
type SupportedKind struct {
	X402Version int               `json:"x402Version"`
	Scheme      string            `json:"scheme"`
	Network     string            `json:"network"`
	Extra       map[string]string `json:"extra,omitempty"`
}

const (
	supportedKey        = "supported"
	defaultSupportedTTL = 10 * time.Minute
)

// HTTPFacilitator implements Facilitator using HTTP API
type HTTPFacilitator struct {
	baseURL string
	client  *http.Client
	cache   *ttlcache.Cache[string, []SupportedKind]
}

// FacilitatorOption configures an HTTPFacilitator
type FacilitatorOption func(*HTTPFacilitator)

// WithFacilitatorClient replaces the default 30s HTTP client
func WithFacilitatorClient(c *http.Client) FacilitatorOption {
	return func(f *HTTPFacilitator) {
		f.client = c
	}
}

// WithSupportedTTL sets how long the /supported answer is reused
func WithSupportedTTL(ttl time.Duration) FacilitatorOption {
	return func(f *HTTPFacilitator) {
		f.cache = newSupportedCache(ttl)
	}
}

func newSupportedCache(ttl time.Duration) *ttlcache.Cache[string, []SupportedKind] {
	return ttlcache.New[string, []SupportedKind](
		ttlcache.WithTTL[string, []SupportedKind](ttl),
		ttlcache.WithDisableTouchOnHit[string, []SupportedKind](),
	)
}

// NewHTTPFacilitator creates a new HTTP-based facilitator client
func NewHTTPFacilitator(baseURL string, opts ...FacilitatorOption) *HTTPFacilitator {
	f := &HTTPFacilitator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = newSupportedCache(defaultSupportedTTL)
	}
	return f
}

func (f *HTTPFacilitator) Verify(ctx context.Context, payment *PaymentPayload, requirement *PaymentRequirement) (*VerifyResponse, error) {
	var verifyResp VerifyResponse
	err := f.post(ctx, "/verify", &VerifyRequest{
		X402Version:         1,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	}, &verifyResp)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return &verifyResp, nil
}

func (f *HTTPFacilitator) Settle(ctx context.Context, payment *PaymentPayload, requirement *PaymentRequirement) (*SettleResponse, error) {
	var settleResp SettleResponse
	err := f.post(ctx, "/settle", &SettleRequest{
		X402Version:         1,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	}, &settleResp)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	return &settleResp, nil
}

// Supported lists the scheme/network pairs the facilitator handles. Answers
// are cached; failures are not.
func (f *HTTPFacilitator) Supported(ctx context.Context) ([]SupportedKind, error) {
	if item := f.cache.Get(supportedKey); item != nil {
		return item.Value(), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("create supported request: %w", err)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("supported request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supported failed with status %d", resp.StatusCode)
	}

	var result struct {
		Kinds []SupportedKind `json:"kinds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode supported response: %w", err)
	}

	f.cache.Set(supportedKey, result.Kinds, ttlcache.DefaultTTL)
	return result.Kinds, nil
}

func (f *HTTPFacilitator) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		errMsg := string(bodyBytes)

		var errResp map[string]any
		if err := json.Unmarshal(bodyBytes, &errResp); err == nil {
			if details, ok := errResp["details"]; ok {
				errMsg = fmt.Sprintf("%s - details: %v", errMsg, details)
			}
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, errMsg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// extraFor returns the facilitator's extra fields for network, or nil
func extraFor(kinds []SupportedKind, network string) map[string]string {
	for _, kind := range kinds {
		if kind.Network == network && len(kind.Extra) > 0 {
			out := make(map[string]string, len(kind.Extra))
			for k, v := range kind.Extra {
				out[k] = v
			}
			return out
		}
	}
	return nil
}

package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	x402 "github.com/mark3labs/mcp-walrus-x402"
	"github.com/mark3labs/mcp-walrus-x402/logging"
)

type gatedRoute struct {
	path        string
	prefix      bool
	requirement PaymentRequirement
}

func (r gatedRoute) matches(path string) bool {
	if r.prefix {
		return strings.HasPrefix(path, r.path)
	}
	return path == r.path
}

type paymentGate struct {
	config      *Config
	facilitator Facilitator
	routes      []gatedRoute
	logger      *log.Logger
}

// PaymentMiddleware gates the routes of cfg.Routes behind x402 payments.
// Requests without a valid X-PAYMENT header answer 402 with the accepted
// requirements. Paid requests are verified before the handler runs and
// settled after it, and only when the handler answered below 400.
func PaymentMiddleware(cfg *Config, facilitator Facilitator) (echo.MiddlewareFunc, error) {
	g, err := newPaymentGate(cfg, facilitator)
	if err != nil {
		return nil, err
	}
	return g.middleware, nil
}

func newPaymentGate(cfg *Config, facilitator Facilitator) (*paymentGate, error) {
	if facilitator == nil {
		facilitator = NewHTTPFacilitator(cfg.FacilitatorURL)
	}

	g := &paymentGate{
		config:      cfg,
		facilitator: facilitator,
		logger:      logging.OrDefault(cfg.Logger),
	}

	for _, rp := range cfg.Routes {
		amount, err := ParsePrice(rp.Price)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", rp.Path, err)
		}
		req, err := RequirementForNetwork(cfg.Network, cfg.PayTo, amount, rp.Description)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", rp.Path, err)
		}

		route := gatedRoute{path: rp.Path, requirement: req}
		if strings.HasSuffix(rp.Path, "/*") {
			route.path = strings.TrimSuffix(rp.Path, "*")
			route.prefix = true
		}
		g.routes = append(g.routes, route)
	}

	// exact paths first, then the longest prefix
	sort.SliceStable(g.routes, func(i, j int) bool {
		if g.routes[i].prefix != g.routes[j].prefix {
			return !g.routes[i].prefix
		}
		return len(g.routes[i].path) > len(g.routes[j].path)
	})

	return g, nil
}

func (g *paymentGate) match(path string) *gatedRoute {
	for i := range g.routes {
		if g.routes[i].matches(path) {
			return &g.routes[i]
		}
	}
	return nil
}

func (g *paymentGate) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		route := g.match(r.URL.Path)
		if route == nil {
			return next(c)
		}

		ctx := r.Context()
		accepts := []PaymentRequirement{g.requirementFor(ctx, c, route)}

		header := r.Header.Get(x402.HeaderPayment)
		if header == "" {
			g.logger.Debug("payment required", "path", r.URL.Path)
			return paymentRequired(c, "X-PAYMENT header is required", accepts)
		}

		payment, err := decodePaymentHeader(header)
		if err != nil {
			g.logger.Warn("invalid payment header", "path", r.URL.Path, "err", err)
			return paymentRequired(c, "Invalid payment header", accepts)
		}

		requirement, err := findMatchingRequirement(payment, accepts)
		if err != nil {
			return paymentRequired(c, err.Error(), accepts)
		}

		verifyResp, err := g.facilitator.Verify(ctx, payment, requirement)
		if err != nil {
			g.logger.Error("facilitator verification error", "path", r.URL.Path, "err", err)
			return paymentRequired(c, "Payment verification failed", accepts)
		}
		if !verifyResp.IsValid {
			reason := "Payment verification failed"
			if verifyResp.InvalidReason != "" {
				reason = verifyResp.InvalidReason
			}
			g.logger.Warn("facilitator rejected payment", "path", r.URL.Path, "reason", reason)
			return paymentRequired(c, reason, accepts)
		}
		g.logger.Debug("payment verified", "path", r.URL.Path, "payer", verifyResp.Payer)

		res := c.Response()
		orig := res.Writer
		capture := newResponseCapture()
		res.Writer = capture
		err = next(c)
		res.Writer = orig

		if err != nil {
			if res.Committed {
				capture.flushTo(orig)
			}
			return err
		}
		if capture.statusCode >= http.StatusBadRequest {
			capture.flushTo(orig)
			return nil
		}

		settlement, err := g.settle(ctx, payment, requirement, verifyResp)
		if err != nil {
			g.logger.Error("settlement failed", "path", r.URL.Path, "err", err)
			res.Committed = false
			res.Size = 0
			return paymentRequired(c, err.Error(), accepts)
		}

		encoded, err := encodeSettlement(settlement)
		if err != nil {
			return err
		}
		capture.Header().Set(x402.HeaderPaymentResponse, encoded)
		capture.flushTo(orig)

		g.logger.Info("payment settled",
			"path", r.URL.Path,
			"amount", requirement.MaxAmountRequired,
			"network", settlement.Network,
			"tx", settlement.Transaction)
		return nil
	}
}

// requirementFor fills in the request specific parts of a route requirement.
// Solana requirements also need the facilitator's feePayer.
func (g *paymentGate) requirementFor(ctx context.Context, c echo.Context, route *gatedRoute) PaymentRequirement {
	req := route.requirement
	req.Resource = c.Scheme() + "://" + c.Request().Host + c.Request().URL.Path

	extra := make(map[string]string, len(req.Extra))
	for k, v := range req.Extra {
		extra[k] = v
	}

	if x402.IsSolanaNetwork(req.Network) {
		kinds, err := g.facilitator.Supported(ctx)
		if err != nil {
			g.logger.Warn("failed to fetch supported payments from facilitator; solana payments may lack a feePayer", "err", err)
		}
		for k, v := range extraFor(kinds, req.Network) {
			extra[k] = v
		}
	}

	req.Extra = extra
	return req
}

func (g *paymentGate) settle(ctx context.Context, payment *PaymentPayload, requirement *PaymentRequirement, verified *VerifyResponse) (*SettlementResponse, error) {
	if g.config.VerifyOnly {
		return &SettlementResponse{
			Success:     true,
			Transaction: "verify-only-mode",
			Network:     payment.Network,
			Payer:       verified.Payer,
		}, nil
	}

	settleResp, err := g.facilitator.Settle(ctx, payment, requirement)
	if err != nil {
		return nil, fmt.Errorf("payment settlement failed: %w", err)
	}
	if !settleResp.Success {
		reason := "Payment settlement failed"
		if settleResp.ErrorReason != "" {
			reason = settleResp.ErrorReason
		}
		return nil, errors.New(reason)
	}

	payer := settleResp.Payer
	if payer == "" {
		payer = verified.Payer
	}
	network := settleResp.Network
	if network == "" {
		network = payment.Network
	}
	return &SettlementResponse{
		Success:     true,
		Transaction: settleResp.Transaction,
		Network:     network,
		Payer:       payer,
	}, nil
}

func paymentRequired(c echo.Context, msg string, accepts []PaymentRequirement) error {
	return c.JSON(http.StatusPaymentRequired, PaymentRequirements402Response{
		X402Version: 1,
		Error:       msg,
		Accepts:     accepts,
	})
}

func decodePaymentHeader(header string) (*PaymentPayload, error) {
	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}

	var payment PaymentPayload
	if err := json.Unmarshal(decoded, &payment); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}

	if payment.X402Version != 1 {
		return nil, fmt.Errorf("unsupported x402 version: %d", payment.X402Version)
	}

	return &payment, nil
}

func encodeSettlement(s *SettlementResponse) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// responseCapture holds a handler's response until the payment is settled
type responseCapture struct {
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func newResponseCapture() *responseCapture {
	return &responseCapture{header: make(http.Header), statusCode: http.StatusOK}
}

func (c *responseCapture) Header() http.Header {
	return c.header
}

func (c *responseCapture) WriteHeader(code int) {
	c.statusCode = code
}

func (c *responseCapture) Write(b []byte) (int, error) {
	return c.body.Write(b)
}

func (c *responseCapture) flushTo(w http.ResponseWriter) {
	for k, v := range c.header {
		w.Header()[k] = v
	}
	w.WriteHeader(c.statusCode)
	_, _ = w.Write(c.body.Bytes())
}

package x402

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-walrus-x402/logging"
)

// maxChallengeBody bounds how much of a 402 body is read when looking for
// payment requirements.
const maxChallengeBody = 1 << 20

// Transport is an http.RoundTripper that answers an HTTP 402 challenge by
// signing one of the offered payment requirements and retrying the request
// once with an X-PAYMENT header.
type Transport struct {
	base    http.RoundTripper
	handler *PaymentHandler
	logger  *log.Logger

	onPaymentAttempt func(PaymentEvent)
	onPaymentSuccess func(PaymentEvent)
	onPaymentFailure func(PaymentEvent, error)

	paymentRecorder *PaymentRecorder
}

// TransportConfig configures the Transport
type TransportConfig struct {
	Signers          []PaymentSigner
	MaxPaymentAmount string
	AutoPayThreshold string
	RateLimits       *RateLimits
	PaymentCallback  func(amount *big.Int, resource string) bool

	// Base performs the actual round trips; http.DefaultTransport when nil
	Base   http.RoundTripper
	Logger *log.Logger

	OnPaymentAttempt func(PaymentEvent)
	OnPaymentSuccess func(PaymentEvent)
	OnPaymentFailure func(PaymentEvent, error)
}

// TransportOption customizes a Transport after construction
type TransportOption func(*Transport)

// WithPaymentRecorder records every payment event, mostly for tests
func WithPaymentRecorder(recorder *PaymentRecorder) TransportOption {
	return func(t *Transport) {
		t.paymentRecorder = recorder
	}
}

// NewTransport creates a payment-aware round tripper
func NewTransport(cfg TransportConfig, opts ...TransportOption) (*Transport, error) {
	handlerConfig := &HandlerConfig{
		MaxPaymentAmount: cfg.MaxPaymentAmount,
		AutoPayThreshold: cfg.AutoPayThreshold,
		RateLimits:       cfg.RateLimits,
		PaymentCallback:  cfg.PaymentCallback,
	}
	handler, err := NewPaymentHandler(cfg.Signers, handlerConfig)
	if err != nil {
		return nil, err
	}

	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}

	t := &Transport{
		base:             base,
		handler:          handler,
		logger:           logging.OrDefault(cfg.Logger),
		onPaymentAttempt: cfg.OnPaymentAttempt,
		onPaymentSuccess: cfg.OnPaymentSuccess,
		onPaymentFailure: cfg.OnPaymentFailure,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Metrics returns the spend tracked by the underlying payment handler
func (t *Transport) Metrics() BudgetMetrics {
	return t.handler.GetMetrics()
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// the body has to be replayable for the paid retry
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("buffer request body: %w", err)
		}
		req = req.Clone(req.Context())
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired || req.Header.Get(HeaderPayment) != "" {
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChallengeBody))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read payment challenge: %w", err)
	}

	var reqs PaymentRequirementsResponse
	if err := json.Unmarshal(body, &reqs); err != nil || len(reqs.Accepts) == 0 {
		if err == nil {
			err = ErrNoAcceptablePayment
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPaymentReqs, err)
	}

	resource := req.URL.String()
	t.logger.Debug("payment required", "resource", resource, "accepts", len(reqs.Accepts), "reason", reqs.Error)

	payment, selected, err := t.handler.CreatePayment(req.Context(), reqs)
	if err != nil {
		failed := reqs.Accepts[0]
		failed.Resource = resource
		t.emitFailure(req.Method, failed, err)
		return nil, NewPaymentError("PAYMENT_FAILED", "could not create payment", failed, err)
	}
	if selected.Resource == "" {
		selected.Resource = resource
	}
	t.emit(PaymentEventAttempt, req.Method, *selected, "")

	header, err := payment.Encode()
	if err != nil {
		t.emitFailure(req.Method, *selected, err)
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		if retry.Body, err = req.GetBody(); err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
	}
	retry.Header.Set(HeaderPayment, header)

	paid, err := t.base.RoundTrip(retry)
	if err != nil {
		t.emitFailure(req.Method, *selected, err)
		return nil, err
	}

	if paid.StatusCode == http.StatusPaymentRequired {
		t.emitFailure(req.Method, *selected, ErrPaymentRejected)
		return paid, nil
	}

	var tx string
	if h := paid.Header.Get(HeaderPaymentResponse); h != "" {
		settlement, err := DecodeSettlement(h)
		if err != nil {
			t.logger.Warn("unreadable settlement header", "resource", resource, "err", err)
		} else {
			tx = settlement.Transaction
		}
	}
	t.emit(PaymentEventSuccess, req.Method, *selected, tx)
	t.logger.Info("payment accepted",
		"resource", resource,
		"network", selected.Network,
		"amount", selected.MaxAmountRequired,
		"status", paid.StatusCode,
		"tx", tx)

	return paid, nil
}

func (t *Transport) event(eventType PaymentEventType, method string, req PaymentRequirement) PaymentEvent {
	amount, _ := new(big.Int).SetString(req.MaxAmountRequired, 10)
	return PaymentEvent{
		Type:      eventType,
		Resource:  req.Resource,
		Method:    method,
		Amount:    amount,
		Network:   req.Network,
		Asset:     req.Asset,
		Recipient: req.PayTo,
		Timestamp: time.Now().Unix(),
	}
}

func (t *Transport) emit(eventType PaymentEventType, method string, req PaymentRequirement, tx string) {
	event := t.event(eventType, method, req)
	event.Transaction = tx

	if t.paymentRecorder != nil {
		t.paymentRecorder.Record(event)
	}
	switch eventType {
	case PaymentEventAttempt:
		if t.onPaymentAttempt != nil {
			t.onPaymentAttempt(event)
		}
	case PaymentEventSuccess:
		if t.onPaymentSuccess != nil {
			t.onPaymentSuccess(event)
		}
	}
}

func (t *Transport) emitFailure(method string, req PaymentRequirement, err error) {
	event := t.event(PaymentEventFailure, method, req)
	event.Error = err

	if t.paymentRecorder != nil {
		t.paymentRecorder.Record(event)
	}
	if t.onPaymentFailure != nil {
		t.onPaymentFailure(event, err)
	}
	t.logger.Warn("payment failed", "resource", req.Resource, "network", req.Network, "err", err)
}

package server

import (
	"encoding/json"

	"github.com/charmbracelet/log"
)

// PaymentRequirement defines payment requirements for a gated route
// per x402 protocol §5.1
type PaymentRequirement struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	Asset             string            `json:"asset"`
	PayTo             string            `json:"payTo"`
	Resource          string            `json:"resource"`
	Description       string            `json:"description"`
	MimeType          string            `json:"mimeType,omitempty"`
	OutputSchema      any               `json:"outputSchema,omitempty"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// PaymentRequirements402Response is the HTTP 402 response body
type PaymentRequirements402Response struct {
	X402Version int                  `json:"x402Version"`
	Error       string               `json:"error"`
	Accepts     []PaymentRequirement `json:"accepts"`
}

// PaymentPayload represents the X-PAYMENT header content
// per x402 protocol §5.2.
// Payload stays raw: EVM payers send an authorization, Solana payers a
// transaction, and only the facilitator interprets either.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// SettlementResponse is included in X-PAYMENT-RESPONSE header
// per x402 protocol §5.3
type SettlementResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// VerifyRequest sent to facilitator /verify endpoint
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      *PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirement `json:"paymentRequirements"`
}

// VerifyResponse from facilitator
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	Payer         string `json:"payer"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SettleRequest sent to facilitator /settle endpoint
type SettleRequest struct {
	X402Version         int                 `json:"x402Version"`
	PaymentPayload      *PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirement `json:"paymentRequirements"`
}

// SettleResponse from facilitator
type SettleResponse struct {
	Success     bool   `json:"success"`
	Payer       string `json:"payer"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// RoutePrice is one entry of the price table. A Path ending in "/*" gates
// every path below it.
type RoutePrice struct {
	Path        string
	Price       string
	Description string
}

// Config for the payment gate and the resource server
type Config struct {
	// FacilitatorURL is the base URL of the x402 facilitator service
	FacilitatorURL string

	// PayTo receives every payment
	PayTo string

	// Network is the chain all prices are quoted on
	Network string

	// Routes is the price table; unlisted paths are free
	Routes []RoutePrice

	// VerifyOnly if true, only verifies but doesn't settle payments
	VerifyOnly bool

	Logger *log.Logger
}

// DefaultRoutes is the price table of the resource server
func DefaultRoutes() []RoutePrice {
	return []RoutePrice{
		{Path: "/weather", Price: "$0.001", Description: "Weather report"},
		{Path: "/download", Price: "$0.01", Description: "Walrus download access"},
		{Path: "/download/*", Price: "$0.01", Description: "Walrus blob download"},
	}
}

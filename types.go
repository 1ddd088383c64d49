package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

const (
	// HeaderPayment carries the base64 encoded PaymentPayload on the retried request
	HeaderPayment = "X-PAYMENT"
	// HeaderPaymentResponse carries the base64 encoded SettlementResponse back to the payer
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"

	// SchemeExact is the only x402 scheme this client signs for
	SchemeExact = "exact"

	x402Version = 1
)

// PaymentRequirement represents a payment method offered by a resource server
type PaymentRequirement struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	Asset             string            `json:"asset"`
	PayTo             string            `json:"payTo"`
	Resource          string            `json:"resource"`
	Description       string            `json:"description"`
	MimeType          string            `json:"mimeType,omitempty"`
	OutputSchema      interface{}       `json:"outputSchema,omitempty"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// PaymentRequirementsResponse is the HTTP 402 response body
type PaymentRequirementsResponse struct {
	X402Version int                  `json:"x402Version"`
	Error       string               `json:"error"`
	Accepts     []PaymentRequirement `json:"accepts"`
}

// PaymentPayload is the signed payment sent in the X-PAYMENT header.
// Payload is scheme specific: EVM signers put a PaymentPayloadData there,
// Solana signers a partially signed transaction.
type PaymentPayload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Payload     any    `json:"payload"`
}

// PaymentPayloadData contains the signature and authorization
type PaymentPayloadData struct {
	Signature     string               `json:"signature"`
	Authorization PaymentAuthorization `json:"authorization"`
}

// PaymentAuthorization contains EIP-3009 authorization data
type PaymentAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Encode encodes the payment payload as base64 for the X-PAYMENT header
func (p *PaymentPayload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// SettlementResponse represents the X-PAYMENT-RESPONSE header content
type SettlementResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// DecodeSettlement parses an X-PAYMENT-RESPONSE header value
func DecodeSettlement(header string) (*SettlementResponse, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("decode settlement header: %w", err)
	}

	var settlement SettlementResponse
	if err := json.Unmarshal(raw, &settlement); err != nil {
		return nil, fmt.Errorf("unmarshal settlement: %w", err)
	}
	return &settlement, nil
}

// PaymentEvent represents a payment lifecycle event
type PaymentEvent struct {
	Type        PaymentEventType
	Resource    string
	Method      string
	Amount      *big.Int
	Network     string
	Asset       string
	Recipient   string
	Transaction string
	Error       error
	Timestamp   int64
}

// PaymentEventType represents types of payment events
type PaymentEventType string

const (
	PaymentEventAttempt PaymentEventType = "attempt"
	PaymentEventSuccess PaymentEventType = "success"
	PaymentEventFailure PaymentEventType = "failure"
)

// NetworkChainIDs maps EVM network names to chain IDs
var NetworkChainIDs = map[string]*big.Int{
	"base-sepolia":   big.NewInt(84532),
	"base":           big.NewInt(8453),
	"avalanche-fuji": big.NewInt(43113),
	"avalanche":      big.NewInt(43114),
	"polygon":        big.NewInt(137),
	"polygon-amoy":   big.NewInt(80002),
	"ethereum":       big.NewInt(1),
	"sepolia":        big.NewInt(11155111),
}

// GetChainID returns the chain ID for a network name
func GetChainID(network string) *big.Int {
	if chainID, ok := NetworkChainIDs[network]; ok {
		return chainID
	}
	return big.NewInt(1) // Default to mainnet
}

// IsSolanaNetwork reports whether network is one of the SVM networks
func IsSolanaNetwork(network string) bool {
	return network == "solana" || network == "solana-devnet"
}

// ClientPaymentOption represents a payment method the client accepts
type ClientPaymentOption struct {
	PaymentRequirement

	// Client-specific fields
	Priority   int      `json:"-"` // Lower number = higher priority
	MaxAmount  string   `json:"-"` // Client's max willing to pay with this option
	MinBalance string   `json:"-"` // Don't use if balance falls below this
	ChainID    *big.Int `json:"-"` // EVM chain, overrides NetworkChainIDs
	NetworkID  string   `json:"-"` // Solana cluster: mainnet-beta or devnet
}

package x402

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Payment errors
	ErrPaymentRequired     = errors.New("payment required")
	ErrPaymentRejected     = errors.New("payment rejected by server")
	ErrNoAcceptablePayment = errors.New("no acceptable payment method found")
	ErrSigningFailed       = errors.New("failed to sign payment")
	ErrInvalidPaymentReqs  = errors.New("invalid payment requirements")
	ErrPaymentDeclined     = errors.New("payment declined by policy")

	// Budget errors
	ErrAmountExceedsLimit = errors.New("payment amount exceeds per-request limit")
	ErrRateLimitExceeded  = errors.New("payment rate limit exceeded")
	ErrBudgetExceeded     = errors.New("hourly payment budget exceeded")

	// Network errors
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrUnsupportedAsset   = errors.New("unsupported asset")

	// Signer errors
	ErrInvalidPrivateKey     = errors.New("invalid private key")
	ErrInvalidMnemonic       = errors.New("invalid mnemonic phrase")
	ErrInvalidKeystore       = errors.New("invalid keystore file")
	ErrWrongPassword         = errors.New("wrong keystore password")
	ErrNoSignerConfigured    = errors.New("no payment signer configured")
	ErrNoPaymentOptions      = errors.New("at least one payment option must be configured")
	ErrNoViablePaymentOption = errors.New("no viable payment option found across all signers")
)

// PaymentError provides detailed payment error information
type PaymentError struct {
	Code     string
	Message  string
	Resource string
	Amount   string
	Network  string
	Wrapped  error
}

func (e *PaymentError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (resource: %s, amount: %s, network: %s): %v",
			e.Code, e.Message, e.Resource, e.Amount, e.Network, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s (resource: %s, amount: %s, network: %s)",
		e.Code, e.Message, e.Resource, e.Amount, e.Network)
}

func (e *PaymentError) Unwrap() error {
	return e.Wrapped
}

// NewPaymentError creates a new PaymentError for the requirement being paid
func NewPaymentError(code, message string, req PaymentRequirement, wrapped error) *PaymentError {
	return &PaymentError{
		Code:     code,
		Message:  message,
		Resource: req.Resource,
		Amount:   req.MaxAmountRequired,
		Network:  req.Network,
		Wrapped:  wrapped,
	}
}

// SignerFailure represents a single signer's failure details
type SignerFailure struct {
	SignerIndex    int
	SignerPriority int
	SignerAddress  string
	Reason         string
	WrappedError   error
}

// MultiSignerError aggregates failures from multiple signers
type MultiSignerError struct {
	Message        string
	SignerFailures []SignerFailure
}

func (e *MultiSignerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	fmt.Fprintf(&b, " across %d signers:\n", len(e.SignerFailures))
	for _, failure := range e.SignerFailures {
		fmt.Fprintf(&b, "  Signer[%d] (priority=%d, address=%s): %s\n",
			failure.SignerIndex, failure.SignerPriority, failure.SignerAddress, failure.Reason)
	}
	return b.String()
}

// Unwrap exposes every signer failure to errors.Is / errors.As
func (e *MultiSignerError) Unwrap() []error {
	errs := make([]error, 0, len(e.SignerFailures)+1)
	errs = append(errs, ErrNoViablePaymentOption)
	for _, f := range e.SignerFailures {
		if f.WrappedError != nil {
			errs = append(errs, f.WrappedError)
		}
	}
	return errs
}

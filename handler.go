package x402

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// PaymentHandler picks a payment requirement a configured signer can honour,
// applies the spending policy and signs it.
type PaymentHandler struct {
	signers       []PaymentSigner
	budgetManager *BudgetManager
	config        *HandlerConfig
}

// HandlerConfig configures the payment handler
type HandlerConfig struct {
	MaxPaymentAmount string
	AutoPayThreshold string // pay without asking the callback below this amount
	RateLimits       *RateLimits
	PaymentCallback  func(amount *big.Int, resource string) bool
}

// DefaultHandlerConfig caps a single payment at 1 USDC
func DefaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		MaxPaymentAmount: "1000000",
		AutoPayThreshold: "100000",
	}
}

// NewPaymentHandler creates a new payment handler. Signers are tried in
// priority order (lower first); ties keep the given order.
func NewPaymentHandler(signers []PaymentSigner, config *HandlerConfig) (*PaymentHandler, error) {
	if len(signers) == 0 {
		return nil, ErrNoSignerConfigured
	}
	for i, s := range signers {
		if s == nil {
			return nil, fmt.Errorf("signer %d is nil", i)
		}
	}
	if config == nil {
		config = DefaultHandlerConfig()
	}

	budgetManager, err := NewBudgetManager(config.MaxPaymentAmount, config.RateLimits)
	if err != nil {
		return nil, err
	}

	sorted := append([]PaymentSigner(nil), signers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].GetPriority() < sorted[j].GetPriority()
	})

	return &PaymentHandler{
		signers:       sorted,
		budgetManager: budgetManager,
		config:        config,
	}, nil
}

// ShouldPay applies the budget and the approval policy to a requirement
func (h *PaymentHandler) ShouldPay(req PaymentRequirement) (bool, error) {
	amount, err := parseAmount(req.MaxAmountRequired)
	if err != nil {
		return false, err
	}

	if err := h.budgetManager.CanSpend(amount, req.Resource); err != nil {
		return false, err
	}

	if h.config.AutoPayThreshold != "" {
		threshold, ok := new(big.Int).SetString(h.config.AutoPayThreshold, 10)
		if !ok {
			return false, fmt.Errorf("invalid auto-pay threshold: %s", h.config.AutoPayThreshold)
		}
		if amount.Cmp(threshold) <= 0 {
			return true, nil
		}
	}

	if h.config.PaymentCallback != nil {
		return h.config.PaymentCallback(amount, req.Resource), nil
	}
	return true, nil
}

// CreatePayment selects a requirement from reqs.Accepts, signs it with the
// first signer able to, and records the spend. The selected requirement is
// returned alongside the payload.
func (h *PaymentHandler) CreatePayment(ctx context.Context, reqs PaymentRequirementsResponse) (*PaymentPayload, *PaymentRequirement, error) {
	if len(reqs.Accepts) == 0 {
		return nil, nil, ErrNoAcceptablePayment
	}

	var failures []SignerFailure
	fail := func(i int, s PaymentSigner, err error) {
		failures = append(failures, SignerFailure{
			SignerIndex:    i,
			SignerPriority: s.GetPriority(),
			SignerAddress:  s.GetAddress(),
			Reason:         err.Error(),
			WrappedError:   err,
		})
	}

	for i, signer := range h.signers {
		selected, err := h.selectPaymentMethod(signer, reqs.Accepts)
		if err != nil {
			fail(i, signer, err)
			continue
		}

		shouldPay, err := h.ShouldPay(*selected)
		if err != nil {
			fail(i, signer, err)
			continue
		}
		if !shouldPay {
			fail(i, signer, ErrPaymentDeclined)
			continue
		}

		payment, err := signer.SignPayment(ctx, *selected)
		if err != nil {
			fail(i, signer, fmt.Errorf("%w: %v", ErrSigningFailed, err))
			continue
		}

		amount, _ := parseAmount(selected.MaxAmountRequired)
		h.budgetManager.RecordPayment(amount, selected.Resource)
		return payment, selected, nil
	}

	return nil, nil, &MultiSignerError{
		Message:        "no viable payment option",
		SignerFailures: failures,
	}
}

// selectPaymentMethod returns the cheapest requirement among those matching
// the signer's highest-priority option.
func (h *PaymentHandler) selectPaymentMethod(signer PaymentSigner, accepts []PaymentRequirement) (*PaymentRequirement, error) {
	type candidate struct {
		req      PaymentRequirement
		priority int
		amount   *big.Int
	}

	var candidates []candidate
	var lastErr error
	for _, req := range accepts {
		option := signer.GetPaymentOption(req.Network, req.Asset)
		if option == nil {
			continue
		}
		if option.Scheme != req.Scheme {
			continue
		}

		amount, err := parseAmount(req.MaxAmountRequired)
		if err != nil {
			lastErr = err
			continue
		}

		if option.MaxAmount != "" {
			if maxAmount, ok := new(big.Int).SetString(option.MaxAmount, 10); ok && amount.Cmp(maxAmount) > 0 {
				lastErr = fmt.Errorf("%w: %s exceeds option max %s", ErrAmountExceedsLimit, amount, maxAmount)
				continue
			}
		}

		candidates = append(candidates, candidate{req: req, priority: option.Priority, amount: amount})
	}

	if len(candidates) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrNoAcceptablePayment
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].amount.Cmp(candidates[j].amount) < 0
	})

	return &candidates[0].req, nil
}

// GetMetrics returns budget metrics
func (h *PaymentHandler) GetMetrics() BudgetMetrics {
	return h.budgetManager.GetMetrics()
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid payment amount: %s", ErrInvalidPaymentReqs, s)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive: %s", ErrInvalidPaymentReqs, s)
	}
	return amount, nil
}

// IsBudgetError reports whether err came from the spending policy rather
// than from signing or transport.
func IsBudgetError(err error) bool {
	return errors.Is(err, ErrAmountExceedsLimit) ||
		errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrPaymentDeclined)
}

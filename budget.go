package x402

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimits defines rate limiting configuration
type RateLimits struct {
	MaxPaymentsPerMinute int
	MaxAmountPerHour     string
}

// BudgetManager enforces the per-payment cap, a payments-per-minute token
// bucket and a rolling hourly spend ceiling.
type BudgetManager struct {
	mu               sync.Mutex
	maxPaymentAmount *big.Int
	maxHourly        *big.Int
	limiter          *rate.Limiter
	now              func() time.Time

	payments        []paymentRecord
	hourlySpent     *big.Int
	hourlyResetTime time.Time
}

type paymentRecord struct {
	timestamp time.Time
	amount    *big.Int
	resource  string
}

func parsePositive(label, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %s", label, s)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive: %s", label, s)
	}
	return v, nil
}

// NewBudgetManager creates a new budget manager. An empty maxPaymentAmount
// disables the per-payment cap and nil rateLimits disables rate limiting.
func NewBudgetManager(maxPaymentAmount string, rateLimits *RateLimits) (*BudgetManager, error) {
	bm := &BudgetManager{
		hourlySpent: big.NewInt(0),
		now:         time.Now,
	}

	if maxPaymentAmount != "" {
		v, err := parsePositive("max payment amount", maxPaymentAmount)
		if err != nil {
			return nil, err
		}
		bm.maxPaymentAmount = v
	}

	if rateLimits != nil {
		if rateLimits.MaxAmountPerHour != "" {
			v, err := parsePositive("max hourly amount", rateLimits.MaxAmountPerHour)
			if err != nil {
				return nil, err
			}
			bm.maxHourly = v
		}
		if n := rateLimits.MaxPaymentsPerMinute; n > 0 {
			bm.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		}
	}

	bm.hourlyResetTime = bm.now().Add(time.Hour)
	return bm, nil
}

// CanSpend checks if a payment is within budget limits without consuming
// any rate-limit tokens.
func (bm *BudgetManager) CanSpend(amount *big.Int, resource string) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.maxPaymentAmount != nil && amount.Cmp(bm.maxPaymentAmount) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrAmountExceedsLimit, amount, bm.maxPaymentAmount)
	}

	if bm.limiter != nil && bm.limiter.TokensAt(bm.now()) < 1 {
		return ErrRateLimitExceeded
	}

	if bm.maxHourly != nil {
		bm.resetHourLocked()
		if new(big.Int).Add(bm.hourlySpent, amount).Cmp(bm.maxHourly) > 0 {
			return ErrBudgetExceeded
		}
	}

	return nil
}

// RecordPayment records a successful payment
func (bm *BudgetManager) RecordPayment(amount *big.Int, resource string) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	now := bm.now()
	bm.payments = append(bm.payments, paymentRecord{
		timestamp: now,
		amount:    new(big.Int).Set(amount),
		resource:  resource,
	})

	if bm.limiter != nil {
		bm.limiter.AllowN(now, 1)
	}
	bm.resetHourLocked()
	bm.hourlySpent.Add(bm.hourlySpent, amount)

	// keep the last 24 hours
	cutoff := now.Add(-24 * time.Hour)
	for i, p := range bm.payments {
		if p.timestamp.After(cutoff) {
			bm.payments = bm.payments[i:]
			break
		}
	}
}

func (bm *BudgetManager) resetHourLocked() {
	now := bm.now()
	if !now.Before(bm.hourlyResetTime) {
		bm.hourlySpent = big.NewInt(0)
		bm.hourlyResetTime = now.Add(time.Hour)
	}
}

// GetMetrics returns current spending metrics
func (bm *BudgetManager) GetMetrics() BudgetMetrics {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	total := big.NewInt(0)
	for _, p := range bm.payments {
		total.Add(total, p.amount)
	}

	return BudgetMetrics{
		TotalSpent:   total.String(),
		HourlySpent:  bm.hourlySpent.String(),
		PaymentCount: len(bm.payments),
	}
}

// BudgetMetrics contains spending metrics
type BudgetMetrics struct {
	TotalSpent   string
	HourlySpent  string
	PaymentCount int
}

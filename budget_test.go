package x402

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetManager(t *testing.T) {
	t.Run("PerPaymentCap", func(t *testing.T) {
		bm, err := NewBudgetManager("1000", nil)
		require.NoError(t, err)

		assert.NoError(t, bm.CanSpend(big.NewInt(1000), "r"))
		assert.ErrorIs(t, bm.CanSpend(big.NewInt(1001), "r"), ErrAmountExceedsLimit)
	})

	t.Run("NoCapWhenEmpty", func(t *testing.T) {
		bm, err := NewBudgetManager("", nil)
		require.NoError(t, err)
		assert.NoError(t, bm.CanSpend(big.NewInt(1_000_000_000), "r"))
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		_, err := NewBudgetManager("abc", nil)
		assert.Error(t, err)
		_, err = NewBudgetManager("0", nil)
		assert.Error(t, err)
		_, err = NewBudgetManager("", &RateLimits{MaxAmountPerHour: "-1"})
		assert.Error(t, err)
	})

	t.Run("PaymentsPerMinute", func(t *testing.T) {
		bm, err := NewBudgetManager("", &RateLimits{MaxPaymentsPerMinute: 2})
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			require.NoError(t, bm.CanSpend(big.NewInt(1), "r"))
			bm.RecordPayment(big.NewInt(1), "r")
		}
		assert.ErrorIs(t, bm.CanSpend(big.NewInt(1), "r"), ErrRateLimitExceeded)

		// a minute later the bucket has refilled
		base := time.Now()
		bm.now = func() time.Time { return base.Add(time.Minute) }
		assert.NoError(t, bm.CanSpend(big.NewInt(1), "r"))
	})

	t.Run("HourlyCeiling", func(t *testing.T) {
		bm, err := NewBudgetManager("", &RateLimits{MaxAmountPerHour: "1500"})
		require.NoError(t, err)

		bm.RecordPayment(big.NewInt(1000), "r")
		assert.NoError(t, bm.CanSpend(big.NewInt(500), "r"))
		assert.ErrorIs(t, bm.CanSpend(big.NewInt(501), "r"), ErrBudgetExceeded)

		base := time.Now()
		bm.now = func() time.Time { return base.Add(61 * time.Minute) }
		assert.NoError(t, bm.CanSpend(big.NewInt(1500), "r"))
	})

	t.Run("Metrics", func(t *testing.T) {
		bm, err := NewBudgetManager("", nil)
		require.NoError(t, err)

		bm.RecordPayment(big.NewInt(1000), "a")
		bm.RecordPayment(big.NewInt(10), "b")

		m := bm.GetMetrics()
		assert.Equal(t, "1010", m.TotalSpent)
		assert.Equal(t, "1010", m.HourlySpent)
		assert.Equal(t, 2, m.PaymentCount)
	})
}

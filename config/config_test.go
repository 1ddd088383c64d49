package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	x402 "github.com/mark3labs/mcp-walrus-x402"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "/weather", cfg.DataPath)
	assert.Equal(t, "base-sepolia", cfg.Network)
	assert.Equal(t, "1000000", cfg.MaxPaymentAmount)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4021, cfg.ResourceServerPort)
	assert.Equal(t, 60*time.Second, cfg.ToolTimeout())
	assert.Equal(t, "https://publisher.walrus-01.tududes.com", cfg.PublisherURL)
	assert.Equal(t, "https://aggregator.walrus-testnet.walrus.space", cfg.AggregatorURL)
	assert.Equal(t, "testnet", cfg.SuiNetwork)
	assert.False(t, cfg.VerifyOnly)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.PaymentEnabled())
	assert.False(t, cfg.InlineDownloads())
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]string{
		"PRIVATE_KEY=" + testKey,
		"RESOURCE_SERVER_URL=http://localhost:4021",
		"ENDPOINT_PATH=/download",
		"NETWORK=polygon-amoy",
		"VERIFY_ONLY=true",
		"TOOL_TIMEOUT=5",
		"PORT=9000",
		"DEBUG=1",
		"AWS_LAMBDA_FUNCTION_NAME=walrus-mcp",
		"SUI_NETWORK=mainnet",
	})
	require.NoError(t, err)

	assert.True(t, cfg.PaymentEnabled())
	assert.NoError(t, cfg.ValidatePayment())
	assert.True(t, cfg.VerifyOnly)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.InlineDownloads())
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout())
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "mainnet", cfg.Endpoints().SuiNetwork)
}

func TestParseRejectsBadTimeout(t *testing.T) {
	_, err := Parse([]string{"TOOL_TIMEOUT=0"})
	assert.Error(t, err)

	_, err = Parse([]string{"TOOL_TIMEOUT=soon"})
	assert.Error(t, err)
}

func TestValidateListsEveryMissingName(t *testing.T) {
	cfg := &Config{}

	err := cfg.ValidatePayment()
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"PRIVATE_KEY", "RESOURCE_SERVER_URL", "ENDPOINT_PATH"}, missing.Names)
	assert.Contains(t, err.Error(), "RESOURCE_SERVER_URL")

	err = cfg.ValidateResourceServer()
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"FACILITATOR_URL", "ADDRESS", "NETWORK"}, missing.Names)
}

func TestSigners(t *testing.T) {
	t.Run("NoneConfigured", func(t *testing.T) {
		cfg, err := Parse(nil)
		require.NoError(t, err)
		_, err = cfg.Signers()
		assert.ErrorIs(t, err, x402.ErrNoSignerConfigured)
	})

	t.Run("PrivateKeyOnNetwork", func(t *testing.T) {
		cfg, err := Parse([]string{"PRIVATE_KEY=" + testKey, "NETWORK=base"})
		require.NoError(t, err)

		signers, err := cfg.Signers()
		require.NoError(t, err)
		require.Len(t, signers, 1)
		assert.True(t, signers[0].SupportsNetwork("base"))
		assert.False(t, signers[0].SupportsNetwork("base-sepolia"))
	})

	t.Run("Mnemonic", func(t *testing.T) {
		cfg, err := Parse([]string{"MNEMONIC=abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"})
		require.NoError(t, err)

		signers, err := cfg.Signers()
		require.NoError(t, err)
		assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", signers[0].GetAddress())
	})

	t.Run("BadKey", func(t *testing.T) {
		cfg, err := Parse([]string{"PRIVATE_KEY=zz"})
		require.NoError(t, err)
		_, err = cfg.Signers()
		assert.ErrorIs(t, err, x402.ErrInvalidPrivateKey)
	})

	t.Run("UnknownNetwork", func(t *testing.T) {
		cfg, err := Parse([]string{"PRIVATE_KEY=" + testKey, "NETWORK=dogechain"})
		require.NoError(t, err)
		_, err = cfg.Signers()
		assert.ErrorIs(t, err, x402.ErrUnsupportedNetwork)
	})

	t.Run("ClientConfig", func(t *testing.T) {
		cfg, err := Parse([]string{
			"PRIVATE_KEY=" + testKey,
			"RESOURCE_SERVER_URL=http://localhost:4021",
			"MAX_PAYMENT_AMOUNT=5000",
		})
		require.NoError(t, err)

		cc, err := cfg.ClientConfig()
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:4021", cc.BaseURL)
		assert.Equal(t, "5000", cc.MaxPaymentAmount)
		assert.Len(t, cc.Signers, 1)
		assert.Nil(t, cc.RateLimits)
		assert.Empty(t, cc.AutoPayThreshold)
	})

	t.Run("SpendingLimits", func(t *testing.T) {
		cfg, err := Parse([]string{
			"PRIVATE_KEY=" + testKey,
			"RESOURCE_SERVER_URL=http://localhost:4021",
			"MAX_PAYMENTS_PER_MINUTE=3",
			"MAX_AMOUNT_PER_HOUR=250000",
			"AUTO_PAY_THRESHOLD=1000",
		})
		require.NoError(t, err)

		cc, err := cfg.ClientConfig()
		require.NoError(t, err)
		require.NotNil(t, cc.RateLimits)
		assert.Equal(t, 3, cc.RateLimits.MaxPaymentsPerMinute)
		assert.Equal(t, "250000", cc.RateLimits.MaxAmountPerHour)
		assert.Equal(t, "1000", cc.AutoPayThreshold)

		bm, err := x402.NewBudgetManager(cc.MaxPaymentAmount, cc.RateLimits)
		require.NoError(t, err)
		assert.NoError(t, bm.CanSpend(big.NewInt(200000), "r"))
		assert.Error(t, bm.CanSpend(big.NewInt(300000), "r"))
	})

	t.Run("HourlyLimitOnly", func(t *testing.T) {
		cfg, err := Parse([]string{"MAX_AMOUNT_PER_HOUR=10"})
		require.NoError(t, err)
		require.NotNil(t, cfg.RateLimits())
		assert.Zero(t, cfg.RateLimits().MaxPaymentsPerMinute)
	})

	t.Run("NegativeRate", func(t *testing.T) {
		_, err := Parse([]string{"MAX_PAYMENTS_PER_MINUTE=-1"})
		assert.Error(t, err)
	})
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("WALRUS_TEST_DOTENV_MARKER=1\nDATA_PATH=/from-dotenv\n"), 0o600))

	t.Setenv("DATA_PATH", "")
	require.NoError(t, os.Unsetenv("DATA_PATH"))
	t.Cleanup(func() {
		_ = os.Unsetenv("WALRUS_TEST_DOTENV_MARKER")
		_ = os.Unsetenv("DATA_PATH")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from-dotenv", cfg.DataPath)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}

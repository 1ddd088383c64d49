package x402

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testPrivateKey = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"
	testPayTo      = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
)

func baseSepoliaRequirement(amount string) PaymentRequirement {
	return PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: amount,
		Asset:             USDCBaseSepolia,
		PayTo:             testPayTo,
		Resource:          "http://resource.test/weather",
		Description:       "Weather report",
		MaxTimeoutSeconds: 60,
		Extra: map[string]string{
			"name":    "USDC",
			"version": "2",
		},
	}
}

func create402HTTPResponse(w http.ResponseWriter, accepts ...PaymentRequirement) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(PaymentRequirementsResponse{
		X402Version: 1,
		Error:       "X-PAYMENT header is required",
		Accepts:     accepts,
	})
}

func settlementHeader(t *testing.T, tx string) string {
	t.Helper()
	data, err := json.Marshal(SettlementResponse{
		Success:     true,
		Transaction: tx,
		Network:     "base-sepolia",
		Payer:       "0xTestWallet",
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

// decodePaymentHeader parses an X-PAYMENT value the way a facilitator would
func decodePaymentHeader(t *testing.T, header string) map[string]any {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

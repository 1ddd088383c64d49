package server

import (
	"fmt"

	x402 "github.com/mark3labs/mcp-walrus-x402"
)

type usdcDeployment struct {
	asset string
	extra map[string]string
}

// EIP-712 domain names differ between mainnet and testnet USDC contracts.
// Solana entries carry decimals; the feePayer comes from the facilitator.
var usdcDeployments = map[string]usdcDeployment{
	"base":           {x402.USDCBase, map[string]string{"name": "USD Coin", "version": "2"}},
	"base-sepolia":   {x402.USDCBaseSepolia, map[string]string{"name": "USDC", "version": "2"}},
	"polygon":        {x402.USDCPolygon, map[string]string{"name": "USD Coin", "version": "2"}},
	"polygon-amoy":   {x402.USDCPolygonAmoy, map[string]string{"name": "USDC", "version": "2"}},
	"avalanche":      {x402.USDCAvalanche, map[string]string{"name": "USD Coin", "version": "2"}},
	"avalanche-fuji": {x402.USDCAvalancheFuji, map[string]string{"name": "USD Coin", "version": "2"}},
	"solana":         {x402.USDCSolana, map[string]string{"name": "USD Coin", "decimals": "6"}},
	"solana-devnet":  {x402.USDCSolanaDevnet, map[string]string{"name": "USDC (Devnet)", "decimals": "6"}},
}

// RequirementForNetwork builds an "exact" USDC requirement paying amount
// atomic units to payTo on network.
func RequirementForNetwork(network, payTo, amount, description string) (PaymentRequirement, error) {
	d, ok := usdcDeployments[network]
	if !ok {
		return PaymentRequirement{}, fmt.Errorf("%w: no USDC deployment known for %q", x402.ErrUnsupportedNetwork, network)
	}

	extra := make(map[string]string, len(d.extra))
	for k, v := range d.extra {
		extra[k] = v
	}

	return PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           network,
		Asset:             d.asset,
		PayTo:             payTo,
		MaxAmountRequired: amount,
		Description:       description,
		MimeType:          "application/json",
		MaxTimeoutSeconds: 60,
		Extra:             extra,
	}, nil
}

func findMatchingRequirement(payment *PaymentPayload, requirements []PaymentRequirement) (*PaymentRequirement, error) {
	for i := range requirements {
		req := &requirements[i]

		if req.Network != "" && req.Network != payment.Network {
			continue
		}

		if req.Scheme != "" && req.Scheme != payment.Scheme {
			continue
		}

		return req, nil
	}

	return nil, fmt.Errorf("no matching payment requirement found for network=%s, scheme=%s",
		payment.Network, payment.Scheme)
}

package x402

import (
	"fmt"
	"math/big"
)

// USDC contract addresses (EVM) and mints (Solana) per network
const (
	USDCBase          = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	USDCBaseSepolia   = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	USDCPolygon       = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
	USDCPolygonAmoy   = "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582"
	USDCAvalanche     = "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"
	USDCAvalancheFuji = "0x5425890298aed601595a70AB815c96711a31Bc65"
	USDCSolana        = "EPjFWdd5AufbNZfMZYmEs3rmUnFX4BTaBDWxw6GKodRL"
	USDCSolanaDevnet  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

func evmUSDC(network, asset, name string, chainID int64) ClientPaymentOption {
	return ClientPaymentOption{
		PaymentRequirement: PaymentRequirement{
			Scheme:  SchemeExact,
			Network: network,
			Asset:   asset,
			Extra: map[string]string{
				"name":    name,
				"version": "2",
			},
		},
		Priority: 1,
		ChainID:  big.NewInt(chainID),
	}
}

// AcceptUSDCBase creates a client payment option for USDC on Base mainnet
func AcceptUSDCBase() ClientPaymentOption {
	return evmUSDC("base", USDCBase, "USD Coin", 8453)
}

// AcceptUSDCBaseSepolia creates a client payment option for USDC on Base Sepolia testnet
func AcceptUSDCBaseSepolia() ClientPaymentOption {
	return evmUSDC("base-sepolia", USDCBaseSepolia, "USDC", 84532)
}

// AcceptUSDCPolygon creates a client payment option for USDC on Polygon PoS
func AcceptUSDCPolygon() ClientPaymentOption {
	return evmUSDC("polygon", USDCPolygon, "USD Coin", 137)
}

// AcceptUSDCPolygonAmoy creates a client payment option for USDC on Polygon Amoy testnet
func AcceptUSDCPolygonAmoy() ClientPaymentOption {
	return evmUSDC("polygon-amoy", USDCPolygonAmoy, "USDC", 80002)
}

// AcceptUSDCAvalanche creates a client payment option for USDC on Avalanche C-Chain
func AcceptUSDCAvalanche() ClientPaymentOption {
	return evmUSDC("avalanche", USDCAvalanche, "USD Coin", 43114)
}

// AcceptUSDCAvalancheFuji creates a client payment option for USDC on Avalanche Fuji testnet
func AcceptUSDCAvalancheFuji() ClientPaymentOption {
	return evmUSDC("avalanche-fuji", USDCAvalancheFuji, "USD Coin", 43113)
}

// AcceptUSDCSolana creates a client payment option for USDC on Solana mainnet
func AcceptUSDCSolana() ClientPaymentOption {
	return ClientPaymentOption{
		PaymentRequirement: PaymentRequirement{
			Scheme:  SchemeExact,
			Network: "solana",
			Asset:   USDCSolana,
		},
		Priority:  1,
		NetworkID: "mainnet-beta",
	}
}

// AcceptUSDCSolanaDevnet creates a client payment option for USDC on Solana devnet
func AcceptUSDCSolanaDevnet() ClientPaymentOption {
	return ClientPaymentOption{
		PaymentRequirement: PaymentRequirement{
			Scheme:  SchemeExact,
			Network: "solana-devnet",
			Asset:   USDCSolanaDevnet,
		},
		Priority:  1,
		NetworkID: "devnet",
	}
}

// AcceptUSDCForNetwork resolves a network name to its USDC option
func AcceptUSDCForNetwork(network string) (ClientPaymentOption, error) {
	switch network {
	case "base":
		return AcceptUSDCBase(), nil
	case "base-sepolia":
		return AcceptUSDCBaseSepolia(), nil
	case "polygon":
		return AcceptUSDCPolygon(), nil
	case "polygon-amoy":
		return AcceptUSDCPolygonAmoy(), nil
	case "avalanche":
		return AcceptUSDCAvalanche(), nil
	case "avalanche-fuji":
		return AcceptUSDCAvalancheFuji(), nil
	case "solana":
		return AcceptUSDCSolana(), nil
	case "solana-devnet":
		return AcceptUSDCSolanaDevnet(), nil
	}
	return ClientPaymentOption{}, fmt.Errorf("%w: no USDC deployment known for %q", ErrUnsupportedNetwork, network)
}

// Fluent API for customization

// WithPriority sets the priority for this payment option
func (opt ClientPaymentOption) WithPriority(p int) ClientPaymentOption {
	opt.Priority = p
	return opt
}

// WithMaxAmount sets the maximum amount the client is willing to pay with this option
func (opt ClientPaymentOption) WithMaxAmount(amount string) ClientPaymentOption {
	opt.MaxAmount = amount
	return opt
}

// WithMinBalance sets the minimum balance to maintain (won't use if balance would fall below)
func (opt ClientPaymentOption) WithMinBalance(amount string) ClientPaymentOption {
	opt.MinBalance = amount
	return opt
}

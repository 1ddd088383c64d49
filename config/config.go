// Package config reads the process configuration once at startup. Components
// receive the values they need at construction and never consult the
// environment themselves.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	x402 "github.com/mark3labs/mcp-walrus-x402"
	"github.com/mark3labs/mcp-walrus-x402/walrus"
)

// Config holds every setting of the walrus-x402 binaries
type Config struct {
	// payer key material; the first EVM source set wins
	PrivateKey       string `env:"PRIVATE_KEY"`
	Mnemonic         string `env:"MNEMONIC"`
	DerivationPath   string `env:"DERIVATION_PATH"`
	KeystorePath     string `env:"KEYSTORE_PATH"`
	KeystorePassword string `env:"KEYSTORE_PASSWORD"`
	SolanaPrivateKey string `env:"SOLANA_PRIVATE_KEY"`

	// payment-gated resource client
	ResourceServerURL string `env:"RESOURCE_SERVER_URL"`
	EndpointPath      string `env:"ENDPOINT_PATH"`
	DataPath          string `env:"DATA_PATH,default=/weather"`
	MaxPaymentAmount  string `env:"MAX_PAYMENT_AMOUNT,default=1000000"`

	// client spending limits; unset means unlimited
	MaxPaymentsPerMinute int    `env:"MAX_PAYMENTS_PER_MINUTE,default=0"`
	MaxAmountPerHour     string `env:"MAX_AMOUNT_PER_HOUR"`
	AutoPayThreshold     string `env:"AUTO_PAY_THRESHOLD"`

	// resource server
	FacilitatorURL     string `env:"FACILITATOR_URL"`
	Address            string `env:"ADDRESS"`
	Network            string `env:"NETWORK,default=base-sepolia"`
	VerifyOnly         bool   `env:"VERIFY_ONLY,default=false"`
	ResourceServerPort int    `env:"RESOURCE_SERVER_PORT,default=4021"`

	// walrus
	PublisherURL  string `env:"WALRUS_PUBLISHER_URL,default=https://publisher.walrus-01.tududes.com"`
	AggregatorURL string `env:"WALRUS_AGGREGATOR_URL,default=https://aggregator.walrus-testnet.walrus.space"`
	SuiNetwork    string `env:"SUI_NETWORK,default=testnet"`
	TempDir       string `env:"WALRUS_TEMP_DIR"`
	OutputDir     string `env:"WALRUS_OUTPUT_DIR"`

	// tool adapter
	Port               int    `env:"PORT,default=8080"`
	ToolTimeoutSeconds int    `env:"TOOL_TIMEOUT,default=60"`
	LambdaFunctionName string `env:"AWS_LAMBDA_FUNCTION_NAME"`

	Debug bool `env:"DEBUG,default=false"`
}

// MissingError names every required variable that is unset
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing environment variables: " + strings.Join(e.Names, ", ")
}

// Load reads the given .env files (".env" when none are named) into the
// process environment without overriding variables already set, then parses
// the environment. Missing .env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse(os.Environ())
}

// Parse builds a Config from KEY=VALUE pairs
func Parse(environ []string) (*Config, error) {
	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg := &Config{}
	if err := env.Unmarshal(es, cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.ToolTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("TOOL_TIMEOUT must be positive, got %d", cfg.ToolTimeoutSeconds)
	}
	if cfg.MaxPaymentsPerMinute < 0 {
		return nil, fmt.Errorf("MAX_PAYMENTS_PER_MINUTE must not be negative, got %d", cfg.MaxPaymentsPerMinute)
	}
	return cfg, nil
}

// HasEVMKey reports whether any EVM key source is configured
func (c *Config) HasEVMKey() bool {
	return c.PrivateKey != "" || c.Mnemonic != "" || c.KeystorePath != ""
}

// HasSigner reports whether any payer key is configured
func (c *Config) HasSigner() bool {
	return c.HasEVMKey() || c.SolanaPrivateKey != ""
}

// PaymentEnabled reports whether downloads should pay before fetching
func (c *Config) PaymentEnabled() bool {
	return c.HasSigner() && c.ResourceServerURL != "" && c.EndpointPath != ""
}

// ValidatePayment checks the settings the payment-gated client needs
func (c *Config) ValidatePayment() error {
	var missing []string
	if !c.HasSigner() {
		missing = append(missing, "PRIVATE_KEY")
	}
	if c.ResourceServerURL == "" {
		missing = append(missing, "RESOURCE_SERVER_URL")
	}
	if c.EndpointPath == "" {
		missing = append(missing, "ENDPOINT_PATH")
	}
	if len(missing) > 0 {
		return &MissingError{Names: missing}
	}
	return nil
}

// ValidateResourceServer checks the settings the resource server needs
func (c *Config) ValidateResourceServer() error {
	var missing []string
	if c.FacilitatorURL == "" {
		missing = append(missing, "FACILITATOR_URL")
	}
	if c.Address == "" {
		missing = append(missing, "ADDRESS")
	}
	if c.Network == "" {
		missing = append(missing, "NETWORK")
	}
	if len(missing) > 0 {
		return &MissingError{Names: missing}
	}
	return nil
}

// ToolTimeout is the overall budget of one tool call
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// InlineDownloads reports whether downloads should be returned inline
// instead of left on disk, as on AWS Lambda.
func (c *Config) InlineDownloads() bool {
	return c.LambdaFunctionName != ""
}

// Endpoints returns the Walrus endpoints
func (c *Config) Endpoints() walrus.Endpoints {
	return walrus.Endpoints{
		PublisherURL:  c.PublisherURL,
		AggregatorURL: c.AggregatorURL,
		SuiNetwork:    c.SuiNetwork,
	}
}

func (c *Config) evmNetwork() string {
	if x402.IsSolanaNetwork(c.Network) {
		return "base-sepolia"
	}
	return c.Network
}

func (c *Config) solanaNetwork() string {
	if c.Network == "solana" {
		return "solana"
	}
	return "solana-devnet"
}

// Signers builds the payer signers. The EVM signer (private key, then
// mnemonic, then keystore) comes first; a Solana signer follows when
// SOLANA_PRIVATE_KEY is set. The signer matching NETWORK gets priority.
func (c *Config) Signers() ([]x402.PaymentSigner, error) {
	var signers []x402.PaymentSigner
	solanaFirst := x402.IsSolanaNetwork(c.Network)

	if c.HasEVMKey() {
		opt, err := x402.AcceptUSDCForNetwork(c.evmNetwork())
		if err != nil {
			return nil, err
		}
		priority := 0
		if solanaFirst {
			priority = 1
		}

		switch {
		case c.PrivateKey != "":
			s, err := x402.NewPrivateKeySigner(c.PrivateKey, opt)
			if err != nil {
				return nil, fmt.Errorf("PRIVATE_KEY: %w", err)
			}
			signers = append(signers, s.WithPriority(priority))
		case c.Mnemonic != "":
			s, err := x402.NewMnemonicSigner(c.Mnemonic, c.DerivationPath, opt)
			if err != nil {
				return nil, fmt.Errorf("MNEMONIC: %w", err)
			}
			signers = append(signers, s.WithPriority(priority))
		default:
			s, err := x402.NewKeystoreSignerFromFile(c.KeystorePath, c.KeystorePassword, opt)
			if err != nil {
				return nil, fmt.Errorf("KEYSTORE_PATH: %w", err)
			}
			s.WithPriority(priority)
			signers = append(signers, s)
		}
	}

	if c.SolanaPrivateKey != "" {
		opt, err := x402.AcceptUSDCForNetwork(c.solanaNetwork())
		if err != nil {
			return nil, err
		}
		priority := 1
		if solanaFirst {
			priority = 0
		}
		s, err := x402.NewSolanaPrivateKeySigner(c.SolanaPrivateKey, opt)
		if err != nil {
			return nil, fmt.Errorf("SOLANA_PRIVATE_KEY: %w", err)
		}
		signers = append(signers, s.WithPriority(priority))
	}

	if len(signers) == 0 {
		return nil, x402.ErrNoSignerConfigured
	}
	return signers, nil
}

// RateLimits returns the client spending limits, or nil when none is set
func (c *Config) RateLimits() *x402.RateLimits {
	if c.MaxPaymentsPerMinute == 0 && c.MaxAmountPerHour == "" {
		return nil
	}
	return &x402.RateLimits{
		MaxPaymentsPerMinute: c.MaxPaymentsPerMinute,
		MaxAmountPerHour:     c.MaxAmountPerHour,
	}
}

// ClientConfig assembles the payment-gated client settings
func (c *Config) ClientConfig() (x402.ClientConfig, error) {
	signers, err := c.Signers()
	if err != nil {
		return x402.ClientConfig{}, err
	}
	return x402.ClientConfig{
		BaseURL: c.ResourceServerURL,
		TransportConfig: x402.TransportConfig{
			Signers:          signers,
			MaxPaymentAmount: c.MaxPaymentAmount,
			AutoPayThreshold: c.AutoPayThreshold,
			RateLimits:       c.RateLimits(),
		},
	}, nil
}

package x402

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

var computeBudgetProgram = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// SolanaPrivateKeySigner builds and partially signs an SPL TransferChecked
// transaction; the facilitator named in extra.feePayer co-signs and submits it.
type SolanaPrivateKeySigner struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
	options    paymentOptions
	priority   int
	rpcURL     string
}

// NewSolanaPrivateKeySigner creates a signer from a base58-encoded Solana private key
func NewSolanaPrivateKeySigner(privateKeyBase58 string, options ...ClientPaymentOption) (*SolanaPrivateKeySigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return newSolanaSigner(privateKey, options)
}

// NewSolanaPrivateKeySignerFromFile creates a signer from a solana-keygen keypair file
func NewSolanaPrivateKeySignerFromFile(path string, options ...ClientPaymentOption) (*SolanaPrivateKeySigner, error) {
	privateKey, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair file: %w", err)
	}
	return newSolanaSigner(privateKey, options)
}

func newSolanaSigner(privateKey solana.PrivateKey, options []ClientPaymentOption) (*SolanaPrivateKeySigner, error) {
	opts, err := newPaymentOptions(options)
	if err != nil {
		return nil, err
	}
	return &SolanaPrivateKeySigner{
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
		options:    opts,
	}, nil
}

func (s *SolanaPrivateKeySigner) GetAddress() string {
	return s.publicKey.String()
}

func (s *SolanaPrivateKeySigner) SupportsNetwork(network string) bool {
	return s.options.supportsNetwork(network)
}

func (s *SolanaPrivateKeySigner) HasAsset(asset, network string) bool {
	return s.options.hasAsset(asset, network)
}

func (s *SolanaPrivateKeySigner) GetPaymentOption(network, asset string) *ClientPaymentOption {
	return s.options.find(network, asset)
}

func (s *SolanaPrivateKeySigner) GetPriority() int {
	return s.priority
}

// WithPriority sets the signer's priority for multi-signer configurations
func (s *SolanaPrivateKeySigner) WithPriority(priority int) *SolanaPrivateKeySigner {
	s.priority = priority
	return s
}

// WithRPCEndpoint overrides the public cluster RPC used to fetch blockhashes
func (s *SolanaPrivateKeySigner) WithRPCEndpoint(url string) *SolanaPrivateKeySigner {
	s.rpcURL = url
	return s
}

func (s *SolanaPrivateKeySigner) endpoint(option *ClientPaymentOption) (string, error) {
	if s.rpcURL != "" {
		return s.rpcURL, nil
	}
	switch option.NetworkID {
	case "mainnet-beta":
		return rpc.MainNetBeta_RPC, nil
	case "devnet":
		return rpc.DevNet_RPC, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedNetwork, option.NetworkID)
}

func (s *SolanaPrivateKeySigner) SignPayment(ctx context.Context, req PaymentRequirement) (*PaymentPayload, error) {
	option := s.GetPaymentOption(req.Network, req.Asset)
	if option == nil {
		return nil, fmt.Errorf("%w: network=%s asset=%s", ErrUnsupportedAsset, req.Network, req.Asset)
	}

	amount, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok || amount.Sign() <= 0 || !amount.IsUint64() {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidPaymentReqs, req.MaxAmountRequired)
	}

	mint, err := solana.PublicKeyFromBase58(req.Asset)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid mint: %v", ErrInvalidPaymentReqs, err)
	}
	payTo, err := solana.PublicKeyFromBase58(req.PayTo)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid payTo: %v", ErrInvalidPaymentReqs, err)
	}
	feePayer, err := solana.PublicKeyFromBase58(req.Extra["feePayer"])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid feePayer: %v", ErrInvalidPaymentReqs, err)
	}

	decimals := uint8(6)
	if d, ok := req.Extra["decimals"]; ok {
		if n, err := strconv.ParseUint(d, 10, 8); err == nil {
			decimals = uint8(n)
		}
	}

	fromATA, _, err := solana.FindAssociatedTokenAddress(s.publicKey, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sender ATA: %w", err)
	}
	toATA, _, err := solana.FindAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive recipient ATA: %w", err)
	}

	rpcURL, err := s.endpoint(option)
	if err != nil {
		return nil, err
	}
	recent, err := rpc.New(rpcURL).GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash from %s: %w", rpcURL, err)
	}

	instructions := []solana.Instruction{
		// SetComputeUnitLimit(200_000)
		solana.NewInstruction(computeBudgetProgram, solana.AccountMetaSlice{},
			[]byte{2, 0x40, 0x0d, 0x03, 0x00}),
		// SetComputeUnitPrice(10_000 microlamports)
		solana.NewInstruction(computeBudgetProgram, solana.AccountMetaSlice{},
			[]byte{3, 0x10, 0x27, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}),
		token.NewTransferCheckedInstructionBuilder().
			SetAmount(amount.Uint64()).
			SetDecimals(decimals).
			SetSourceAccount(fromATA).
			SetDestinationAccount(toATA).
			SetMintAccount(mint).
			SetOwnerAccount(s.publicKey).
			Build(),
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if s.publicKey.Equals(key) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	return &PaymentPayload{
		X402Version: x402Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: map[string]any{
			"transaction": base64.StdEncoding.EncodeToString(txBytes),
		},
	}, nil
}

// MockSolanaSigner returns a fixed transaction blob
type MockSolanaSigner struct {
	address  string
	options  paymentOptions
	priority int
}

// NewMockSolanaSigner creates a mock Solana signer. Without options it
// accepts USDC on devnet.
func NewMockSolanaSigner(address string, options ...ClientPaymentOption) *MockSolanaSigner {
	if len(options) == 0 {
		options = []ClientPaymentOption{AcceptUSDCSolanaDevnet()}
	}
	opts, _ := newPaymentOptions(options)
	return &MockSolanaSigner{address: address, options: opts}
}

func (m *MockSolanaSigner) GetAddress() string {
	return m.address
}

func (m *MockSolanaSigner) SupportsNetwork(network string) bool {
	return m.options.supportsNetwork(network)
}

func (m *MockSolanaSigner) HasAsset(asset, network string) bool {
	return m.options.hasAsset(asset, network)
}

func (m *MockSolanaSigner) GetPaymentOption(network, asset string) *ClientPaymentOption {
	return m.options.find(network, asset)
}

func (m *MockSolanaSigner) GetPriority() int {
	return m.priority
}

// WithPriority sets the mock signer's priority
func (m *MockSolanaSigner) WithPriority(priority int) *MockSolanaSigner {
	m.priority = priority
	return m
}

func (m *MockSolanaSigner) SignPayment(ctx context.Context, req PaymentRequirement) (*PaymentPayload, error) {
	value, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidPaymentReqs, req.MaxAmountRequired)
	}

	return &PaymentPayload{
		X402Version: x402Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: map[string]any{
			"transaction": "AQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA==",
		},
	}, nil
}

package x402

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// DefaultDerivationPath is the BIP-44 path of the first Ethereum account
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

// PaymentSigner signs x402 payment authorizations
type PaymentSigner interface {
	// SignPayment signs a payment authorization for the given requirement
	SignPayment(ctx context.Context, req PaymentRequirement) (*PaymentPayload, error)

	// GetAddress returns the signer's address
	GetAddress() string

	// SupportsNetwork returns true if the signer supports the given network
	SupportsNetwork(network string) bool

	// HasAsset returns true if the signer is configured for asset on network
	HasAsset(asset, network string) bool

	// GetPaymentOption returns the option matching network and asset, or nil
	GetPaymentOption(network, asset string) *ClientPaymentOption

	// GetPriority orders signers; lower goes first
	GetPriority() int
}

// paymentOptions is shared by every signer that is configured with an
// explicit list of accepted networks and assets.
type paymentOptions []ClientPaymentOption

func newPaymentOptions(options []ClientPaymentOption) (paymentOptions, error) {
	if len(options) == 0 {
		return nil, ErrNoPaymentOptions
	}
	sorted := append(paymentOptions(nil), options...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted, nil
}

func (p paymentOptions) supportsNetwork(network string) bool {
	for _, opt := range p {
		if opt.Network == network {
			return true
		}
	}
	return false
}

func (p paymentOptions) hasAsset(asset, network string) bool {
	return p.find(network, asset) != nil
}

func (p paymentOptions) find(network, asset string) *ClientPaymentOption {
	for _, opt := range p {
		if opt.Network == network && strings.EqualFold(opt.Asset, asset) {
			optCopy := opt
			return &optCopy
		}
	}
	return nil
}

// PrivateKeySigner signs EIP-3009 TransferWithAuthorization messages with a
// raw secp256k1 key.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	options    paymentOptions
	priority   int
}

// NewPrivateKeySigner creates a signer from a hex-encoded private key
func NewPrivateKeySigner(privateKeyHex string, options ...ClientPaymentOption) (*PrivateKeySigner, error) {
	privateKeyBytes, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	return newKeySigner(privateKey, options)
}

func newKeySigner(privateKey *ecdsa.PrivateKey, options []ClientPaymentOption) (*PrivateKeySigner, error) {
	opts, err := newPaymentOptions(options)
	if err != nil {
		return nil, err
	}
	return &PrivateKeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		options:    opts,
	}, nil
}

func (s *PrivateKeySigner) GetAddress() string {
	return s.address.Hex()
}

func (s *PrivateKeySigner) SupportsNetwork(network string) bool {
	return s.options.supportsNetwork(network)
}

func (s *PrivateKeySigner) HasAsset(asset, network string) bool {
	return s.options.hasAsset(asset, network)
}

func (s *PrivateKeySigner) GetPaymentOption(network, asset string) *ClientPaymentOption {
	return s.options.find(network, asset)
}

func (s *PrivateKeySigner) GetPriority() int {
	return s.priority
}

// WithPriority sets the signer's priority for multi-signer configurations
func (s *PrivateKeySigner) WithPriority(priority int) *PrivateKeySigner {
	s.priority = priority
	return s
}

func (s *PrivateKeySigner) SignPayment(ctx context.Context, req PaymentRequirement) (*PaymentPayload, error) {
	option := s.GetPaymentOption(req.Network, req.Asset)
	if option == nil {
		return nil, fmt.Errorf("%w: network=%s asset=%s", ErrUnsupportedAsset, req.Network, req.Asset)
	}

	value, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrInvalidPaymentReqs, req.MaxAmountRequired)
	}
	if !common.IsHexAddress(req.PayTo) {
		return nil, fmt.Errorf("%w: invalid payTo %q", ErrInvalidPaymentReqs, req.PayTo)
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrSigningFailed, err)
	}
	nonce := "0x" + hex.EncodeToString(nonceBytes)

	timeout := req.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	// validAfter slightly in the past to tolerate clock skew with the facilitator
	now := time.Now()
	validAfter := now.Add(-5 * time.Second).Unix()
	validBefore := now.Add(time.Duration(timeout) * time.Second).Unix()

	chainID := option.ChainID
	if chainID == nil {
		chainID = GetChainID(req.Network)
	}

	// requirement extras win over the locally configured token domain
	name, version := option.Extra["name"], option.Extra["version"]
	if v := req.Extra["name"]; v != "" {
		name = v
	}
	if v := req.Extra["version"]; v != "" {
		version = v
	}

	payTo := common.HexToAddress(req.PayTo)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: common.HexToAddress(req.Asset).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        s.address.Hex(),
			"to":          payTo.Hex(),
			"value":       (*math.HexOrDecimal256)(value),
			"validAfter":  (*math.HexOrDecimal256)(big.NewInt(validAfter)),
			"validBefore": (*math.HexOrDecimal256)(big.NewInt(validBefore)),
			"nonce":       nonce,
		},
	}

	sigHash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	signature, err := crypto.Sign(sigHash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}
	signature[64] += 27

	return &PaymentPayload{
		X402Version: x402Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: PaymentPayloadData{
			Signature: "0x" + hex.EncodeToString(signature),
			Authorization: PaymentAuthorization{
				From:        s.address.Hex(),
				To:          payTo.Hex(),
				Value:       value.String(),
				ValidAfter:  fmt.Sprintf("%d", validAfter),
				ValidBefore: fmt.Sprintf("%d", validBefore),
				Nonce:       nonce,
			},
		},
	}, nil
}

// derivePrivateKey derives a private key from a seed using BIP-32 HD derivation
func derivePrivateKey(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	key := masterKey
	for _, n := range path {
		key, err = key.NewChildKey(n)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	privateKey, err := crypto.ToECDSA(key.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to ECDSA key: %w", err)
	}
	return privateKey, nil
}

// MnemonicSigner signs with a key derived from a mnemonic phrase
type MnemonicSigner struct {
	*PrivateKeySigner
}

// NewMnemonicSigner creates a signer from a BIP-39 mnemonic phrase.
// An empty derivationPath uses DefaultDerivationPath.
func NewMnemonicSigner(mnemonic, derivationPath string, options ...ClientPaymentOption) (*MnemonicSigner, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	if derivationPath == "" {
		derivationPath = DefaultDerivationPath
	}
	path, err := accounts.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path: %w", err)
	}

	privateKey, err := derivePrivateKey(bip39.NewSeed(mnemonic, ""), path)
	if err != nil {
		return nil, fmt.Errorf("failed to derive private key: %w", err)
	}

	signer, err := newKeySigner(privateKey, options)
	if err != nil {
		return nil, err
	}
	return &MnemonicSigner{PrivateKeySigner: signer}, nil
}

// WithPriority sets the signer's priority for multi-signer configurations
func (s *MnemonicSigner) WithPriority(priority int) *MnemonicSigner {
	s.priority = priority
	return s
}

// KeystoreSigner signs with a key from an encrypted keystore file
type KeystoreSigner struct {
	*PrivateKeySigner
}

// NewKeystoreSigner creates a signer from an encrypted keystore JSON
func NewKeystoreSigner(keystoreJSON []byte, password string, options ...ClientPaymentOption) (*KeystoreSigner, error) {
	key, err := keystore.DecryptKey(keystoreJSON, password)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
	}

	signer, err := newKeySigner(key.PrivateKey, options)
	if err != nil {
		return nil, err
	}
	return &KeystoreSigner{PrivateKeySigner: signer}, nil
}

// NewKeystoreSignerFromFile reads and decrypts a keystore file
func NewKeystoreSignerFromFile(path, password string, options ...ClientPaymentOption) (*KeystoreSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
	}
	return NewKeystoreSigner(data, password, options...)
}

// MockSigner is a test signer that generates fake signatures
type MockSigner struct {
	address  string
	options  paymentOptions
	priority int
}

// NewMockSigner creates a mock signer for testing. Without options it
// accepts USDC on Base Sepolia.
func NewMockSigner(address string, options ...ClientPaymentOption) *MockSigner {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	if len(options) == 0 {
		options = []ClientPaymentOption{AcceptUSDCBaseSepolia()}
	}
	opts, _ := newPaymentOptions(options)
	return &MockSigner{address: address, options: opts}
}

func (m *MockSigner) GetAddress() string {
	return m.address
}

func (m *MockSigner) SupportsNetwork(network string) bool {
	return m.options.supportsNetwork(network)
}

func (m *MockSigner) HasAsset(asset, network string) bool {
	return m.options.hasAsset(asset, network)
}

func (m *MockSigner) GetPaymentOption(network, asset string) *ClientPaymentOption {
	return m.options.find(network, asset)
}

func (m *MockSigner) GetPriority() int {
	return m.priority
}

// WithPriority sets the mock signer's priority
func (m *MockSigner) WithPriority(priority int) *MockSigner {
	m.priority = priority
	return m
}

func (m *MockSigner) SignPayment(ctx context.Context, req PaymentRequirement) (*PaymentPayload, error) {
	now := time.Now()
	return &PaymentPayload{
		X402Version: x402Version,
		Scheme:      req.Scheme,
		Network:     req.Network,
		Payload: PaymentPayloadData{
			Signature: "0x" + strings.Repeat("00", 65),
			Authorization: PaymentAuthorization{
				From:        m.address,
				To:          req.PayTo,
				Value:       req.MaxAmountRequired,
				ValidAfter:  fmt.Sprintf("%d", now.Unix()),
				ValidBefore: fmt.Sprintf("%d", now.Add(60*time.Second).Unix()),
				Nonce:       "0x" + strings.Repeat("11", 32),
			},
		},
	}, nil
}

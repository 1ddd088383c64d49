package server

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// usdcUnit is one USDC in atomic units (6 decimals)
var usdcUnit = big.NewRat(1_000_000, 1)

var ErrInvalidPrice = errors.New("invalid price")

// ParsePrice converts a dollar price such as "$0.001" into USDC atomic
// units ("1000"). The "$" is optional.
func ParsePrice(price string) (string, error) {
	s := strings.TrimPrefix(strings.TrimSpace(price), "$")
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPrice)
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	if r.Sign() <= 0 {
		return "", fmt.Errorf("%w: %q must be positive", ErrInvalidPrice, price)
	}

	r.Mul(r, usdcUnit)
	if !r.IsInt() {
		return "", fmt.Errorf("%w: %q is finer than one USDC atomic unit", ErrInvalidPrice, price)
	}
	return r.Num().String(), nil
}

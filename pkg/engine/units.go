package engine

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToUnits converts a human amount into integer smallest units. Amounts
// finer than the token's precision are rejected.
func ToUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAllocation, amount, decimals)
	}
	return shifted.BigInt(), nil
}

// ParseUnits parses a decimal string and converts it with ToUnits.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrInvalidAllocation, s, err)
	}
	return ToUnits(d, decimals)
}

// FromUnits converts smallest units back into a human amount.
func FromUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}

// floorUnits converts a human amount into smallest units, dropping sub-unit precision.
func floorUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// estimateShares is (allocated - fee) / price, floored at zero.
func estimateShares(allocated, fee *big.Int, paymentDecimals int32, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	net := FromUnits(new(big.Int).Sub(allocated, fee), paymentDecimals)
	if !net.IsPositive() {
		return decimal.Zero
	}
	return net.DivRound(price, 8)
}

// estimateProceeds is units * price - fee, floored at zero.
func estimateProceeds(units *big.Int, assetDecimals int32, price decimal.Decimal, fee *big.Int, paymentDecimals int32) decimal.Decimal {
	gross := FromUnits(units, assetDecimals).Mul(price)
	net := gross.Sub(FromUnits(fee, paymentDecimals))
	if !net.IsPositive() {
		return decimal.Zero
	}
	return net.Round(paymentDecimals)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

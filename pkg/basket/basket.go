// Package basket models crates: named, weighted collections of tokenized
// equities, and the catalog they are loaded from.
package basket

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cratex/pkg/crypto"
)

var (
	ErrWeightRange     = errors.New("basket: weight must be within 0..100")
	ErrWeightPrecision = errors.New("basket: weight has more than two decimal places")
	ErrWeightSum       = errors.New("basket: weights sum above 100")
)

var hundred = decimal.NewFromInt(100)

// Constituent is one asset of a crate.
type Constituent struct {
	StockID string
	Symbol  string
	// Weight is a percentage in 0..100.
	Weight decimal.Decimal
	// Price is the reference price in USD used for share estimates.
	Price decimal.Decimal
	// Tokens holds "<namespace>:<chainId>:<address>" refs, one per deployment.
	Tokens []string
}

type Crate struct {
	ID           string
	Name         string
	Description  string
	Constituents []Constituent
}

// WeightBps returns the weight in basis points.
func (c Constituent) WeightBps() (int64, error) {
	if c.Weight.IsNegative() || c.Weight.GreaterThan(hundred) {
		return 0, fmt.Errorf("%w: %s=%s", ErrWeightRange, c.Symbol, c.Weight)
	}
	bps := c.Weight.Mul(hundred)
	if !bps.Equal(bps.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s=%s", ErrWeightPrecision, c.Symbol, c.Weight)
	}
	return bps.IntPart(), nil
}

// TokenFor resolves the constituent's asset token on the given chain.
func (c Constituent) TokenFor(chainID *big.Int) (common.Address, bool) {
	if chainID == nil {
		return common.Address{}, false
	}
	want := chainID.String()
	for _, ref := range c.Tokens {
		parts := strings.Split(ref, ":")
		if len(parts) != 3 || parts[0] != "eip155" || parts[1] != want {
			continue
		}
		sum, ok := crypto.ChecksumHex(parts[2])
		if !ok {
			continue
		}
		return common.HexToAddress(sum), true
	}
	return common.Address{}, false
}

// TokenRef formats a token ref for the given chain.
func TokenRef(chainID *big.Int, token common.Address) string {
	return fmt.Sprintf("eip155:%s:%s", chainID, token.Hex())
}

// ValidateWeights checks every weight and that the total stays within 100%.
func ValidateWeights(cs []Constituent) error {
	var total int64
	for _, c := range cs {
		bps, err := c.WeightBps()
		if err != nil {
			return err
		}
		total += bps
	}
	if total > 10_000 {
		return fmt.Errorf("%w: %d bps", ErrWeightSum, total)
	}
	return nil
}

// Find returns the constituent with the given stock id.
func (c *Crate) Find(stockID string) (Constituent, bool) {
	for _, con := range c.Constituents {
		if con.StockID == stockID {
			return con, true
		}
	}
	return Constituent{}, false
}

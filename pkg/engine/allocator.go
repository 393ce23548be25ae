package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/cratex/pkg/basket"
)

// Eligible is a constituent resolved to an asset token on the active chain.
type Eligible struct {
	Constituent basket.Constituent
	Token       common.Address
}

// Allocation is the output of Allocate.
type Allocation struct {
	Lines   []AllocationLine
	Skipped []Skip
	// Remainder is the integer-division loss, always < len(eligible).
	Remainder *big.Int
}

// ResolveConstituents splits constituents into those with a token on
// chainID and skips for the rest. Exclusion happens before any weight
// normalization.
func ResolveConstituents(chainID *big.Int, cs []basket.Constituent) ([]Eligible, []Skip) {
	var eligible []Eligible
	var skipped []Skip
	for _, c := range cs {
		token, ok := c.TokenFor(chainID)
		if !ok {
			skipped = append(skipped, Skip{
				StockID: c.StockID,
				Symbol:  c.Symbol,
				Reason:  SkipNoToken,
				Detail:  fmt.Sprintf("no token on chain %s", chainID),
			})
			continue
		}
		eligible = append(eligible, Eligible{Constituent: c, Token: token})
	}
	return eligible, skipped
}

// Allocate distributes total across eligible constituents:
// amount_i = floor(total * bps_i / Σbps). Weights are normalized over the
// eligible set only. Lines that round to zero are skipped.
func Allocate(total *big.Int, eligible []Eligible, side Side) (*Allocation, error) {
	if total == nil || total.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrInvalidAllocation)
	}
	bps := make([]int64, len(eligible))
	var sum int64
	for i, e := range eligible {
		w, err := e.Constituent.WeightBps()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAllocation, err)
		}
		bps[i] = w
		sum += w
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: eligible weight is zero", ErrInvalidAllocation)
	}
	if sum > 10_000 {
		return nil, fmt.Errorf("%w: weights sum to %d bps", ErrInvalidAllocation, sum)
	}

	out := &Allocation{}
	denom := big.NewInt(sum)
	allocated := new(big.Int)
	for i, e := range eligible {
		amt := new(big.Int).Mul(total, big.NewInt(bps[i]))
		amt.Quo(amt, denom)
		if amt.Sign() == 0 {
			out.Skipped = append(out.Skipped, Skip{
				StockID: e.Constituent.StockID,
				Symbol:  e.Constituent.Symbol,
				Reason:  SkipZeroAllocation,
			})
			continue
		}
		allocated.Add(allocated, amt)
		out.Lines = append(out.Lines, AllocationLine{
			Constituent: e.Constituent,
			Token:       e.Token,
			Amount:      amt,
			Side:        side,
		})
	}
	out.Remainder = new(big.Int).Sub(total, allocated)
	return out, nil
}

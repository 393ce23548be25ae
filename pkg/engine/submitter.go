package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// submitBatch sends the multicall through the wallet and blocks until it is
// mined. The multicall is atomic: a failed receipt means nothing was applied.
func submitBatch(ctx context.Context, w Wallet, processor common.Address, data []byte) (*types.Receipt, error) {
	hash, err := w.SubmitTransaction(ctx, processor, data)
	if err != nil {
		return nil, fmt.Errorf("submit multicall: %w", classifySubmitErr(err))
	}
	receipt, err := w.WaitForReceipt(ctx, hash)
	if err != nil {
		if ctx.Err() != nil || isTransportErr(err) {
			return nil, fmt.Errorf("%w: waiting for %s: %v", ErrNetwork, hash.Hex(), err)
		}
		return nil, fmt.Errorf("wait for %s: %w", hash.Hex(), classifySubmitErr(err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s reverted in block %v", ErrSubmissionReverted, hash.Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/uhyunpark/cratex/pkg/contracts"
)

// readOne runs call, retrying once on a transport failure.
func readOne(ctx context.Context, r ChainReader, call contracts.Call) (interface{}, error) {
	out, err := r.ReadContract(ctx, call)
	if err != nil && isTransportErr(err) && ctx.Err() == nil {
		out, err = r.ReadContract(ctx, call)
	}
	if err != nil {
		if isTransportErr(err) {
			return nil, fmt.Errorf("%w: read %s: %v", ErrNetwork, call.Method, err)
		}
		return nil, fmt.Errorf("read %s on %s: %w", call.Method, call.To.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("read %s on %s: empty result", call.Method, call.To.Hex())
	}
	return out[0], nil
}

func readBig(ctx context.Context, r ChainReader, call contracts.Call) (*big.Int, error) {
	v, err := readOne(ctx, r, call)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("read %s: unexpected type %T", call.Method, v)
	}
	return n, nil
}

func readUint8(ctx context.Context, r ChainReader, call contracts.Call) (uint8, error) {
	v, err := readOne(ctx, r, call)
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("read %s: unexpected type %T", call.Method, v)
	}
	return n, nil
}

func readString(ctx context.Context, r ChainReader, call contracts.Call) (string, error) {
	v, err := readOne(ctx, r, call)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("read %s: unexpected type %T", call.Method, v)
	}
	return s, nil
}

// blockTime returns the latest block timestamp.
func blockTime(ctx context.Context, r ChainReader) (uint64, error) {
	ts, err := r.BlockTimestamp(ctx)
	if err != nil && isTransportErr(err) && ctx.Err() == nil {
		ts, err = r.BlockTimestamp(ctx)
	}
	if err != nil {
		if isTransportErr(err) {
			return 0, fmt.Errorf("%w: latest block: %v", ErrNetwork, err)
		}
		return 0, fmt.Errorf("latest block: %w", err)
	}
	return ts, nil
}

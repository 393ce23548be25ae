package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/cratex/pkg/contracts"
	"github.com/uhyunpark/cratex/pkg/crypto"
)

// signPermit reads the token's permit domain and the owner's current nonce,
// then asks the wallet for one signature. Callers hold the (owner, token)
// nonce lock.
func (e *Executor) signPermit(ctx context.Context, w Wallet, token common.Address, value, deadline *big.Int) (*PermitAuthorization, error) {
	owner := w.Address()

	nonce, err := readBig(ctx, e.chain, contracts.TokenCall(token, contracts.MethodNonces, owner))
	if err != nil {
		return nil, fmt.Errorf("permit nonce: %w", err)
	}
	name, err := readString(ctx, e.chain, contracts.TokenCall(token, contracts.MethodName))
	if err != nil {
		return nil, fmt.Errorf("permit domain: %w", err)
	}
	version, err := readString(ctx, e.chain, contracts.TokenCall(token, contracts.MethodVersion))
	if err != nil || version == "" {
		if errors.Is(err, ErrNetwork) {
			return nil, fmt.Errorf("permit domain: %w", err)
		}
		version = "1"
	}

	domain := crypto.EIP712Domain{
		Name:              name,
		Version:           version,
		ChainID:           e.chain.ChainID(),
		VerifyingContract: token,
	}
	permit := &crypto.Permit{
		Owner:    owner,
		Spender:  e.cfg.OrderProcessor,
		Value:    new(big.Int).Set(value),
		Nonce:    nonce,
		Deadline: new(big.Int).Set(deadline),
	}

	sig, err := w.SignTypedData(ctx, crypto.PermitTypedData(domain, permit))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrSubmissionRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: sign permit for %s: %v", ErrSubmissionRejected, token.Hex(), err)
	}
	r, s, v, err := crypto.SignatureToRSV(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
	}

	e.logger().Debugw("permit_signed", "token", token.Hex(), "owner", owner.Hex(), "value", value.String(), "nonce", nonce.String())
	return &PermitAuthorization{
		Token:     token,
		Owner:     owner,
		Spender:   e.cfg.OrderProcessor,
		Value:     permit.Value,
		Nonce:     nonce,
		Deadline:  permit.Deadline,
		Signature: sig,
		R:         r,
		S:         s,
		V:         v,
	}, nil
}

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"github.com/uhyunpark/cratex/pkg/crypto"
	"github.com/uhyunpark/cratex/pkg/engine"
	"github.com/uhyunpark/cratex/pkg/util"
)

// ErrUserRejected is returned when Approve declines a transaction.
var ErrUserRejected = fmt.Errorf("%w: declined by wallet", engine.ErrSubmissionRejected)

// LocalWallet signs with a key held by this process and submits through Client.
type LocalWallet struct {
	signer *crypto.Signer
	client *Client

	// GasBufferPercent pads the node's gas estimate.
	GasBufferPercent uint64
	PollInterval     time.Duration
	Clock            util.Clock
	Logger           *zap.SugaredLogger
	// Approve vets every transaction before it is signed. A non-nil error
	// is reported as a declined submission.
	Approve func(to common.Address, data []byte) error

	mu sync.Mutex
}

func NewLocalWallet(signer *crypto.Signer, client *Client) *LocalWallet {
	return &LocalWallet{signer: signer, client: client, GasBufferPercent: 20, PollInterval: 2 * time.Second}
}

func (w *LocalWallet) Address() common.Address { return w.signer.Address() }

func (w *LocalWallet) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	return w.signer.SignTypedData(data)
}

// SubmitTransaction signs and broadcasts a dynamic-fee transaction calling to with data.
func (w *LocalWallet) SubmitTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	if w.Approve != nil {
		if err := w.Approve(to, data); err != nil {
			return common.Hash{}, fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
	}

	// Pending nonce is read and consumed under one lock.
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.client.backend
	from := w.signer.Address()
	nonce, err := b.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := b.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas tip: %w", err)
	}
	head, err := b.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := b.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas * w.GasBufferPercent / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.client.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})
	signed, err := w.signer.SignTx(tx, w.client.ChainID())
	if err != nil {
		return common.Hash{}, err
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	util.OrNop(w.Logger).Infow("tx_sent", "tx", signed.Hash().Hex(), "nonce", nonce, "gas", gas, "to", to.Hex())
	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
func (w *LocalWallet) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	clock := w.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	for {
		receipt, err := w.client.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}
		if err := util.Sleep(ctx, clock, interval); err != nil {
			return nil, err
		}
	}
}

package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/cratex/pkg/contracts"
	"github.com/uhyunpark/cratex/pkg/crypto"
	"github.com/uhyunpark/cratex/pkg/engine"
	"github.com/uhyunpark/cratex/pkg/util"
)

var chainID = big.NewInt(11155111)

type fakeBackend struct {
	mu           sync.Mutex
	responses    map[string][]byte
	sent         []*types.Transaction
	notFound     int
	gasEstimate  uint64
	estimateErr  error
	pendingNonce uint64
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.responses[string(msg.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Time: 1_700_000_123, BaseFee: big.NewInt(10)}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.pendingNonce, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(2), nil }

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gasEstimate, f.estimateErr
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notFound > 0 {
		f.notFound--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful}, nil
}

func TestReadContractRoundTrip(t *testing.T) {
	nonces := contracts.PermitTokenABI.Methods[contracts.MethodNonces]
	out, err := nonces.Outputs.Pack(big.NewInt(42))
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	b := &fakeBackend{responses: map[string][]byte{string(nonces.ID): out}}
	c := NewClient(b, chainID)

	values, err := c.ReadContract(context.Background(), contracts.TokenCall(common.HexToAddress("0x0a"), contracts.MethodNonces, common.HexToAddress("0x0b")))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n, ok := values[0].(*big.Int); !ok || n.Int64() != 42 {
		t.Fatalf("nonce = %v, want 42", values[0])
	}

	if _, err := c.ReadContract(context.Background(), contracts.TokenCall(common.HexToAddress("0x0a"), contracts.MethodVersion)); err == nil {
		t.Fatal("expected error for reverted call")
	}
	ts, err := c.BlockTimestamp(context.Background())
	if err != nil || ts != 1_700_000_123 {
		t.Fatalf("block time = %d, %v", ts, err)
	}
}

func TestLocalWalletSubmitsSignedDynamicFeeTx(t *testing.T) {
	signer, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	b := &fakeBackend{gasEstimate: 100_000, pendingNonce: 5, notFound: 2}
	w := NewLocalWallet(signer, NewClient(b, chainID))
	w.Clock = instant{}

	to := common.HexToAddress("0xf0")
	hash, err := w.SubmitTransaction(context.Background(), to, []byte{0xca, 0xfe})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(b.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(b.sent))
	}
	tx := b.sent[0]
	if tx.Hash() != hash || tx.Nonce() != 5 || tx.Gas() != 120_000 || *tx.To() != to {
		t.Fatalf("tx hash=%s nonce=%d gas=%d", tx.Hash().Hex(), tx.Nonce(), tx.Gas())
	}
	if tx.GasFeeCap().Int64() != 22 || !bytes.Equal(tx.Data(), []byte{0xca, 0xfe}) {
		t.Fatalf("fee cap = %v", tx.GasFeeCap())
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil || from != signer.Address() {
		t.Fatalf("sender = %s, %v", from.Hex(), err)
	}

	receipt, err := w.WaitForReceipt(context.Background(), hash)
	if err != nil || receipt.TxHash != hash {
		t.Fatalf("receipt = %+v, %v", receipt, err)
	}
}

func TestLocalWalletApproveRejects(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	b := &fakeBackend{gasEstimate: 21_000}
	w := NewLocalWallet(signer, NewClient(b, chainID))
	w.Approve = func(common.Address, []byte) error { return errors.New("spend limit exceeded") }

	_, err := w.SubmitTransaction(context.Background(), common.HexToAddress("0xf0"), nil)
	if !errors.Is(err, engine.ErrSubmissionRejected) || !errors.Is(err, ErrUserRejected) {
		t.Fatalf("err = %v, want ErrSubmissionRejected", err)
	}
	if len(b.sent) != 0 {
		t.Fatal("rejected tx must not be sent")
	}
}

func TestWaitForReceiptHonoursContext(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	b := &fakeBackend{notFound: 1 << 30}
	w := NewLocalWallet(signer, NewClient(b, chainID))
	w.PollInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.WaitForReceipt(ctx, common.Hash{1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

type instant struct{}

func (instant) Now() time.Time { return time.Unix(0, 0) }
func (instant) NewTimer(time.Duration) util.Timer {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return instantTimer(ch)
}

type instantTimer chan time.Time

func (t instantTimer) C() <-chan time.Time { return t }
func (t instantTimer) Stop() bool          { return true }

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cratex/pkg/basket"
	"github.com/uhyunpark/cratex/pkg/contracts"
	"github.com/uhyunpark/cratex/pkg/crypto"
	"github.com/uhyunpark/cratex/pkg/util"
)

var (
	testChainID   = big.NewInt(11155111)
	testProcessor = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	testUSDC      = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	tokenA        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB        = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	tokenC        = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func usdc(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000)) }

func constituent(id, weight, price string, token *common.Address) basket.Constituent {
	c := basket.Constituent{
		StockID: id,
		Symbol:  id,
		Weight:  decimal.RequireFromString(weight),
		Price:   decimal.RequireFromString(price),
	}
	if token != nil {
		c.Tokens = []string{basket.TokenRef(testChainID, *token)}
	}
	return c
}

// fakeChain answers contract reads from in-memory tables.
type fakeChain struct {
	mu         sync.Mutex
	blockTime  uint64
	nonces     map[common.Address]*big.Int
	decimals   map[common.Address]uint8
	balances   map[common.Address]*big.Int
	reductions map[common.Address]uint8
	statuses   map[string][]uint8
	statusRead map[string]int
	readErr    error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		blockTime:  1_700_000_000,
		nonces:     map[common.Address]*big.Int{},
		decimals:   map[common.Address]uint8{testUSDC: 6},
		balances:   map[common.Address]*big.Int{},
		reductions: map[common.Address]uint8{},
		statuses:   map[string][]uint8{},
		statusRead: map[string]int{},
	}
}

func (c *fakeChain) ChainID() *big.Int { return new(big.Int).Set(testChainID) }

func (c *fakeChain) BlockTimestamp(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockTime, nil
}

func (c *fakeChain) ReadContract(_ context.Context, call contracts.Call) ([]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	switch call.Method {
	case contracts.MethodNonces:
		n := c.nonces[call.To]
		if n == nil {
			n = new(big.Int)
		}
		return []interface{}{new(big.Int).Set(n)}, nil
	case contracts.MethodName:
		if call.To == testUSDC {
			return []interface{}{"USD Coin"}, nil
		}
		return []interface{}{"Dinari " + call.To.Hex()[38:]}, nil
	case contracts.MethodVersion:
		if call.To == testUSDC {
			return []interface{}{"2"}, nil
		}
		return nil, errors.New("execution reverted")
	case contracts.MethodDecimals:
		d, ok := c.decimals[call.To]
		if !ok {
			d = 18
		}
		return []interface{}{d}, nil
	case contracts.MethodBalanceOf:
		b := c.balances[call.To]
		if b == nil {
			b = new(big.Int)
		}
		return []interface{}{new(big.Int).Set(b)}, nil
	case contracts.MethodOrderDecimalReduction:
		return []interface{}{c.reductions[call.Args[0].(common.Address)]}, nil
	case contracts.MethodGetOrderStatus:
		id := call.Args[0].(*big.Int).String()
		c.statusRead[id]++
		seq := c.statuses[id]
		if len(seq) == 0 {
			return []interface{}{contracts.StatusActive}, nil
		}
		code := seq[0]
		if len(seq) > 1 {
			c.statuses[id] = seq[1:]
		}
		return []interface{}{code}, nil
	}
	return nil, fmt.Errorf("unexpected method %s", call.Method)
}

func (c *fakeChain) reads(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusRead[id]
}

// fakeQuoter returns a fixed fee per stock, or fails for stocks in fail.
type fakeQuoter struct {
	mu     sync.Mutex
	fee    *big.Int
	fail   map[string]bool
	expire bool
	calls  map[string]int
	reqs   []QuoteRequest
	nextID int64
}

func newFakeQuoter(fee *big.Int) *fakeQuoter {
	return &fakeQuoter{fee: fee, fail: map[string]bool{}, calls: map[string]int{}}
}

func (q *fakeQuoter) FeeQuote(_ context.Context, req QuoteRequest) (*FeeQuote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls[req.StockID]++
	q.reqs = append(q.reqs, req)
	if q.fail[req.StockID] {
		return nil, errors.New("pricing authority returned 503")
	}
	q.nextID++
	deadline := uint64(1_700_000_000 + 600)
	if q.expire {
		deadline = 1_700_000_000
	}
	return &FeeQuote{
		OrderID:   big.NewInt(q.nextID),
		Requester: req.Requester,
		Fee:       new(big.Int).Set(q.fee),
		Timestamp: 1_700_000_000,
		Deadline:  deadline,
		Signature: []byte{0x01, 0x02, byte(q.nextID)},
	}, nil
}

func (q *fakeQuoter) count(stock string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[stock]
}

// fakeWallet signs with a real key and mines every submission instantly.
type fakeWallet struct {
	signer *crypto.Signer

	mu         sync.Mutex
	signed     []apitypes.TypedData
	submitted  [][]byte
	signErr    error
	submitErr  error
	revert     bool
	dropEvents int
	nextOrder  int64
	receipts   map[common.Hash]*types.Receipt
}

func newFakeWallet() *fakeWallet {
	s, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &fakeWallet{signer: s, nextOrder: 100, receipts: map[common.Hash]*types.Receipt{}}
}

func (w *fakeWallet) Address() common.Address { return w.signer.Address() }

func (w *fakeWallet) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.signErr != nil {
		return nil, w.signErr
	}
	w.signed = append(w.signed, data)
	return w.signer.SignTypedData(data)
}

func (w *fakeWallet) SubmitTransaction(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitErr != nil {
		return common.Hash{}, w.submitErr
	}
	w.submitted = append(w.submitted, data)
	hash := ethcrypto.Keccak256Hash(data, big.NewInt(int64(len(w.submitted))).Bytes())

	calls, err := decodeMulticall(data)
	if err != nil {
		return common.Hash{}, err
	}
	orders := 0
	for _, c := range calls {
		if bytes.Equal(c[:4], contracts.OrderProcessorABI.Methods[contracts.MethodCreateOrder].ID) {
			orders++
		}
	}
	receipt := &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}
	if w.revert {
		receipt.Status = types.ReceiptStatusFailed
	}
	receipt.Logs = append(receipt.Logs, &types.Log{Address: tokenC, Topics: []common.Hash{{0x01}}, Index: 0})
	event := contracts.OrderProcessorABI.Events[contracts.EventOrderCreated].ID
	for i := 0; i < orders-w.dropEvents; i++ {
		w.nextOrder++
		receipt.Logs = append(receipt.Logs, &types.Log{
			Address: to,
			Topics: []common.Hash{
				event,
				common.BigToHash(big.NewInt(w.nextOrder)),
				common.BytesToHash(w.signer.Address().Bytes()),
			},
			Index: uint(i + 1),
		})
	}
	w.receipts[hash] = receipt
	return hash, nil
}

func (w *fakeWallet) WaitForReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("unknown tx %s", hash.Hex())
	}
	return r, nil
}

func decodeMulticall(data []byte) ([][]byte, error) {
	args, err := contracts.OrderProcessorABI.Methods[contracts.MethodMulticall].Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	return args[0].([][]byte), nil
}

type selfPermitArgs struct {
	token, owner    common.Address
	value, deadline *big.Int
	v               uint8
	r, s            [32]byte
}

func decodeSelfPermit(call []byte) (selfPermitArgs, error) {
	m := contracts.OrderProcessorABI.Methods[contracts.MethodSelfPermit]
	if !bytes.Equal(call[:4], m.ID) {
		return selfPermitArgs{}, errors.New("not a selfPermit call")
	}
	args, err := m.Inputs.Unpack(call[4:])
	if err != nil {
		return selfPermitArgs{}, err
	}
	return selfPermitArgs{
		token:    args[0].(common.Address),
		owner:    args[1].(common.Address),
		value:    args[2].(*big.Int),
		deadline: args[3].(*big.Int),
		v:        args[4].(uint8),
		r:        args[5].([32]byte),
		s:        args[6].([32]byte),
	}, nil
}

type decodedOrder struct {
	sell         bool
	assetToken   common.Address
	paymentToken common.Address
	assetQty     *big.Int
	paymentQty   *big.Int
	price        *big.Int
	tif          uint8
	fee          *big.Int
}

func decodeCreateOrder(call []byte) (decodedOrder, error) {
	m := contracts.OrderProcessorABI.Methods[contracts.MethodCreateOrder]
	if !bytes.Equal(call[:4], m.ID) {
		return decodedOrder{}, errors.New("not a createOrder call")
	}
	args, err := m.Inputs.Unpack(call[4:])
	if err != nil {
		return decodedOrder{}, err
	}
	order := *abi.ConvertType(args[0], new(contracts.Order)).(*contracts.Order)
	quote := *abi.ConvertType(args[1], new(contracts.FeeQuote)).(*contracts.FeeQuote)
	return decodedOrder{
		sell:         order.Sell,
		assetToken:   order.AssetToken,
		paymentToken: order.PaymentToken,
		assetQty:     order.AssetTokenQuantity,
		paymentQty:   order.PaymentTokenQuantity,
		price:        order.Price,
		tif:          order.Tif,
		fee:          quote.Fee,
	}, nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (j *memJournal) Append(e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

type failingRecorder struct{}

func (failingRecorder) RecordExecution(context.Context, Record) error {
	return errors.New("backend unavailable")
}

type captureRecorder struct {
	mu   sync.Mutex
	recs []Record
}

func (c *captureRecorder) RecordExecution(_ context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs = append(c.recs, rec)
	return nil
}

// instantClock fires every timer immediately.
type instantClock struct{ now time.Time }

func (c instantClock) Now() time.Time { return c.now }

func (c instantClock) NewTimer(time.Duration) util.Timer {
	ch := make(chan time.Time, 1)
	ch <- c.now
	return instantTimer{ch}
}

type instantTimer struct{ ch chan time.Time }

func (t instantTimer) C() <-chan time.Time { return t.ch }
func (t instantTimer) Stop() bool          { return true }

func testConfig() Config {
	return Config{
		OrderProcessor:        testProcessor,
		PaymentToken:          testUSDC,
		PaymentDecimals:       6,
		PermitWindow:          300 * time.Second,
		QuoteConcurrency:      2,
		SellQuoteFailureFatal: true,
	}
}

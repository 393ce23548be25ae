package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/cratex/pkg/basket"
	"github.com/uhyunpark/cratex/pkg/contracts"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type SkipReason string

const (
	SkipNoToken             SkipReason = "no_token"
	SkipZeroAllocation      SkipReason = "zero_allocation"
	SkipInsufficientBalance SkipReason = "insufficient_balance"
	SkipQuoteUnavailable    SkipReason = "quote_unavailable"
)

// Skip reports a constituent that was left out of the batch.
type Skip struct {
	StockID string     `json:"stockId"`
	Symbol  string     `json:"symbol"`
	Reason  SkipReason `json:"reason"`
	Detail  string     `json:"detail,omitempty"`
}

// ChainReader is the read side of the active chain.
type ChainReader interface {
	ChainID() *big.Int
	ReadContract(ctx context.Context, call contracts.Call) ([]interface{}, error)
	BlockTimestamp(ctx context.Context) (uint64, error)
}

// Wallet signs and submits on behalf of the user. The engine never sees key material.
type Wallet interface {
	Address() common.Address
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
	SubmitTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// FeeQuoter fetches one signed fee quote per order.
type FeeQuoter interface {
	FeeQuote(ctx context.Context, req QuoteRequest) (*FeeQuote, error)
}

// Recorder persists a mined execution.
type Recorder interface {
	RecordExecution(ctx context.Context, rec Record) error
}

// StatusSink receives tracker snapshots whenever an order changes state.
type StatusSink interface {
	UpdateOrderStatuses(ctx context.Context, snap Snapshot) error
}

// Journal is an append-only reconciliation log.
type Journal interface {
	Append(entry JournalEntry) error
}

// Observer receives execution metrics. Labels are plain strings.
type Observer interface {
	ExecutionFinished(side, outcome string, elapsed time.Duration)
	OrdersSubmitted(side string, n int)
	QuoteFailed()
	ConstituentSkipped(reason string)
	OrderStatusObserved(status string)
}

// QuoteRequest identifies one order to be priced.
type QuoteRequest struct {
	AccountID    string
	ChainID      *big.Int
	StockID      string
	Side         Side
	Requester    common.Address
	PaymentToken common.Address
	// Buy orders quote on payment quantity, sells on asset quantity. Both in smallest units.
	PaymentQuantity *big.Int
	PaymentDecimals int32
	AssetQuantity   *big.Int
	AssetDecimals   int32
}

// FeeQuote is a signed, time-bounded fee the settlement contract will accept.
type FeeQuote struct {
	OrderID   *big.Int
	Requester common.Address
	Fee       *big.Int // payment token smallest units
	Timestamp uint64
	Deadline  uint64
	Signature []byte
}

// Expired reports whether the quote is no longer usable at block time now.
func (q *FeeQuote) Expired(now uint64) bool { return q.Deadline <= now }

func (q *FeeQuote) tuple() contracts.FeeQuote {
	return contracts.FeeQuote{
		OrderId:   q.OrderID,
		Requester: q.Requester,
		Fee:       q.Fee,
		Timestamp: q.Timestamp,
		Deadline:  q.Deadline,
	}
}

// AllocationLine is one constituent's share of the requested amount.
type AllocationLine struct {
	Constituent basket.Constituent
	Token       common.Address
	Amount      *big.Int
	Side        Side
}

// OrderRequest is everything needed to encode one createOrder call.
type OrderRequest struct {
	Line            AllocationLine
	Quote           *FeeQuote
	AssetQuantity   *big.Int
	PaymentQuantity *big.Int
	// Shares is the estimated share count bought, or the exact count sold.
	Shares decimal.Decimal
	// Estimate is shares bought for buys and USD proceeds for sells.
	Estimate decimal.Decimal
}

// PermitAuthorization is one signed EIP-2612 permit.
type PermitAuthorization struct {
	Token     common.Address
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Nonce     *big.Int
	Deadline  *big.Int
	Signature []byte
	R, S      [32]byte
	V         uint8
}

// SubmittedOrder is an order created on chain.
type SubmittedOrder struct {
	OrderID         *big.Int        `json:"orderId"`
	StockID         string          `json:"stockId"`
	Symbol          string          `json:"symbol"`
	AssetToken      common.Address  `json:"assetToken"`
	PaymentQuantity *big.Int        `json:"paymentQuantity"`
	AssetQuantity   *big.Int        `json:"assetQuantity"`
	Fee             *big.Int        `json:"fee"`
	Shares          decimal.Decimal `json:"shares"`
	Estimate        decimal.Decimal `json:"estimate"`
}

// Result is what the caller gets back from a mined batch. TotalSpent is
// allocations plus fees for buys and estimated gross proceeds for sells.
type Result struct {
	ID              string           `json:"id"`
	Side            Side             `json:"side"`
	Wallet          common.Address   `json:"wallet"`
	AccountID       string           `json:"accountId"`
	CrateID         string           `json:"crateId"`
	TxHash          common.Hash      `json:"txHash"`
	ChainID         *big.Int         `json:"chainId"`
	Orders          []SubmittedOrder `json:"orders"`
	Skipped         []Skip           `json:"skipped"`
	Remainder       *big.Int         `json:"remainder"`
	TotalAmount     *big.Int         `json:"totalAmount"`
	TotalSpent      *big.Int         `json:"totalSpent"`
	TotalFees       *big.Int         `json:"totalFees"`
	PaymentDecimals int32            `json:"paymentDecimals"`
	CreatedAt       time.Time        `json:"createdAt"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// OrderIDs returns the created order ids in submission order.
func (r *Result) OrderIDs() []*big.Int {
	ids := make([]*big.Int, len(r.Orders))
	for i, o := range r.Orders {
		ids[i] = o.OrderID
	}
	return ids
}

// Record is the persisted form of an execution.
type Record struct {
	Result Result    `json:"result"`
	Status *Snapshot `json:"status,omitempty"`
}

type JournalKind string

const (
	JournalSubmitted           JournalKind = "submitted"
	JournalInconsistentReceipt JournalKind = "inconsistent_receipt"
)

type JournalEntry struct {
	Kind        JournalKind `json:"kind"`
	ExecutionID string      `json:"executionId"`
	Side        Side        `json:"side"`
	Wallet      string      `json:"wallet"`
	TxHash      string      `json:"txHash"`
	Expected    int         `json:"expected"`
	Got         int         `json:"got"`
	OrderIDs    []string    `json:"orderIds,omitempty"`
	Time        time.Time   `json:"time"`
}

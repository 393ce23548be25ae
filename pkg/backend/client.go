// Package backend talks to the off-chain services around the engine: the
// fee-quote authority and the transaction record store.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uhyunpark/cratex/pkg/engine"
	"github.com/uhyunpark/cratex/pkg/util"
)

var ErrAPIFailure = errors.New("backend api failure")

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter

	Logger *zap.SugaredLogger
}

// NewClient builds a client for baseURL (e.g. http://host/api). rps <= 0
// disables rate limiting.
func NewClient(baseURL, apiKey string, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s: %w", req.Method, req.URL.Path, resp.StatusCode, truncate(body, 256), ErrAPIFailure)
	}
	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload, result interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return c.doRequest(req, result)
}

// FeeQuote requests a signed fee quote for one order.
func (c *Client) FeeQuote(ctx context.Context, req engine.QuoteRequest) (*engine.FeeQuote, error) {
	order := quoteOrder{
		ChainID:      "eip155:" + req.ChainID.String(),
		OrderSide:    strings.ToUpper(string(req.Side)),
		OrderTif:     "DAY",
		OrderType:    "MARKET",
		StockID:      req.StockID,
		PaymentToken: req.PaymentToken.Hex(),
	}
	if req.Side == engine.SideSell {
		order.AssetTokenQuantity = engine.FromUnits(req.AssetQuantity, req.AssetDecimals).String()
	} else {
		order.PaymentTokenQuantity = engine.FromUnits(req.PaymentQuantity, req.PaymentDecimals).String()
	}

	var resp envelope[feeQuoteResponse]
	if err := c.post(ctx, "/transactions/fee-quote", feeQuoteRequest{AccountID: req.AccountID, Order: order}, &resp); err != nil {
		return nil, err
	}
	return parseFeeQuote(resp.Data, req.PaymentDecimals)
}

func parseFeeQuote(data feeQuoteResponse, paymentDecimals int32) (*engine.FeeQuote, error) {
	fq := data.OrderFeeContractObject.FeeQuote
	if fq.OrderID.Int == nil || fq.Deadline.Int == nil {
		return nil, fmt.Errorf("fee quote missing contract fields: %w", ErrAPIFailure)
	}
	if !common.IsHexAddress(fq.Requester) {
		return nil, fmt.Errorf("fee quote requester %q: %w", fq.Requester, ErrAPIFailure)
	}
	sig, err := hexutil.Decode(data.OrderFeeContractObject.FeeQuoteSignature)
	if err != nil {
		return nil, fmt.Errorf("fee quote signature: %w", err)
	}

	fee := fq.Fee.Int
	if fee == nil {
		// Fall back to the display fee, rounded up so the permit covers it.
		d, err := decimalFromString(data.Fee)
		if err != nil {
			return nil, fmt.Errorf("fee quote fee %q: %w", data.Fee, err)
		}
		fee = d.Shift(paymentDecimals).Ceil().BigInt()
	}

	q := &engine.FeeQuote{
		OrderID:   fq.OrderID.Int,
		Requester: common.HexToAddress(fq.Requester),
		Fee:       fee,
		Deadline:  fq.Deadline.Uint64(),
		Signature: sig,
	}
	if fq.Timestamp.Int != nil {
		q.Timestamp = fq.Timestamp.Uint64()
	}
	return q, nil
}

// RecordExecution posts a mined execution to /transactions.
func (c *Client) RecordExecution(ctx context.Context, rec engine.Record) error {
	r := rec.Result
	body := transactionBody{
		Wallet:            r.Wallet.Hex(),
		CrateID:           r.CrateID,
		Type:              string(r.Side),
		ChainID:           json.Number(r.ChainID.String()),
		TransactionHash:   r.TxHash.Hex(),
		TotalFeesDeducted: engine.FromUnits(r.TotalFees, r.PaymentDecimals).String(),
		ExecutionID:       r.ID,
	}
	if r.Side == engine.SideBuy {
		body.TotalAmountInvested = engine.FromUnits(r.TotalAmount, r.PaymentDecimals).String()
	} else {
		body.TotalAmountInvested = engine.FromUnits(r.TotalSpent, r.PaymentDecimals).String()
	}
	for _, o := range r.Orders {
		body.OrderIDs = append(body.OrderIDs, o.OrderID.String())
		body.StockHoldings = append(body.StockHoldings, stockHolding{Stock: o.StockID, SharesOwned: o.Shares.String()})
	}
	if err := c.post(ctx, "/transactions", body, nil); err != nil {
		return err
	}
	util.OrNop(c.Logger).Debugw("backend_transaction_recorded", "execution", r.ID, "tx", r.TxHash.Hex())
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

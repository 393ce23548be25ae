package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// feeQuoteRequest is the body of POST /transactions/fee-quote.
type feeQuoteRequest struct {
	AccountID string     `json:"accountId"`
	Order     quoteOrder `json:"order"`
}

type quoteOrder struct {
	ChainID              string `json:"chain_id"`
	OrderSide            string `json:"order_side"`
	OrderTif             string `json:"order_tif"`
	OrderType            string `json:"order_type"`
	StockID              string `json:"stock_id"`
	PaymentToken         string `json:"payment_token"`
	PaymentTokenQuantity string `json:"payment_token_quantity,omitempty"`
	AssetTokenQuantity   string `json:"asset_token_quantity,omitempty"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type feeQuoteResponse struct {
	Fee                    string              `json:"fee"`
	OrderFeeContractObject orderFeeContractObj `json:"order_fee_contract_object"`
}

type orderFeeContractObj struct {
	FeeQuote          feeQuoteFields `json:"fee_quote"`
	FeeQuoteSignature string         `json:"fee_quote_signature"`
}

type feeQuoteFields struct {
	OrderID   bigNumber `json:"orderId"`
	Requester string    `json:"requester"`
	Fee       bigNumber `json:"fee"`
	Timestamp bigNumber `json:"timestamp"`
	Deadline  bigNumber `json:"deadline"`
}

// bigNumber accepts a JSON number or a decimal/hex string.
type bigNumber struct{ *big.Int }

func (n *bigNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return fmt.Errorf("invalid integer %s", b)
	}
	n.Int = v
	return nil
}

// transactionBody is the body of POST /transactions.
type transactionBody struct {
	Wallet              string         `json:"wallet"`
	CrateID             string         `json:"crateId"`
	Type                string         `json:"type"`
	ChainID             json.Number    `json:"chainId"`
	TransactionHash     string         `json:"transactionHash"`
	OrderIDs            []string       `json:"orderIds"`
	StockHoldings       []stockHolding `json:"stockHoldings"`
	TotalAmountInvested string         `json:"totalAmountInvested"`
	TotalFeesDeducted   string         `json:"totalFeesDeducted"`
	ExecutionID         string         `json:"executionId"`
}

type stockHolding struct {
	Stock       string `json:"stock"`
	SharesOwned string `json:"sharesOwned"`
}

func decimalFromString(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, errors.New("empty")
	}
	return decimal.NewFromString(strings.TrimSpace(s))
}

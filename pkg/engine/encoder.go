package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/cratex/pkg/contracts"
)

// BuildOrder maps an order request onto the on-chain Order tuple: a market
// order with price 0 and the default time-in-force. timestampMs is the
// request time in unix milliseconds.
func BuildOrder(req OrderRequest, recipient, paymentToken common.Address, timestampMs uint64) contracts.Order {
	asset := req.AssetQuantity
	if asset == nil {
		asset = new(big.Int)
	}
	payment := req.PaymentQuantity
	if payment == nil {
		payment = new(big.Int)
	}
	return contracts.Order{
		RequestTimestamp:     timestampMs,
		Recipient:            recipient,
		AssetToken:           req.Line.Token,
		PaymentToken:         paymentToken,
		Sell:                 req.Line.Side == SideSell,
		OrderType:            contracts.OrderTypeMarket,
		AssetTokenQuantity:   asset,
		PaymentTokenQuantity: payment,
		Price:                new(big.Int),
		Tif:                  contracts.TIFDefault,
	}
}

func EncodeCreateOrder(order contracts.Order, quote *FeeQuote) ([]byte, error) {
	data, err := contracts.OrderProcessorABI.Pack(contracts.MethodCreateOrder, order, quote.tuple(), quote.Signature)
	if err != nil {
		return nil, fmt.Errorf("encode createOrder: %w", err)
	}
	return data, nil
}

func EncodeSelfPermit(p *PermitAuthorization) ([]byte, error) {
	data, err := contracts.OrderProcessorABI.Pack(contracts.MethodSelfPermit,
		p.Token, p.Owner, p.Value, p.Deadline, p.V, p.R, p.S)
	if err != nil {
		return nil, fmt.Errorf("encode selfPermit: %w", err)
	}
	return data, nil
}

// EncodeBatch builds multicall([permits..., createOrder...]). Order calls
// keep the order of reqs so receipt events map back 1:1.
func EncodeBatch(permits []*PermitAuthorization, reqs []OrderRequest, recipient, paymentToken common.Address, timestampMs uint64) ([]byte, error) {
	calls := make([][]byte, 0, len(permits)+len(reqs))
	for _, p := range permits {
		c, err := EncodeSelfPermit(p)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	for _, r := range reqs {
		c, err := EncodeCreateOrder(BuildOrder(r, recipient, paymentToken, timestampMs), r.Quote)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	data, err := contracts.OrderProcessorABI.Pack(contracts.MethodMulticall, calls)
	if err != nil {
		return nil, fmt.Errorf("encode multicall: %w", err)
	}
	return data, nil
}

package api

// API request and response types for REST endpoints and WebSocket messages

import (
	"math/big"

	"github.com/uhyunpark/cratex/pkg/basket"
	"github.com/uhyunpark/cratex/pkg/engine"
)

// ==============================
// REST Response Types
// ==============================

type ConstituentInfo struct {
	StockID string   `json:"stockId"`
	Symbol  string   `json:"symbol"`
	Weight  string   `json:"weight"` // percent, e.g. "25.5"
	Price   string   `json:"price"`  // reference USD price
	Tokens  []string `json:"tokens"`
	// Token is the address on the node's chain, empty when not deployed there.
	Token string `json:"token,omitempty"`
}

type CrateInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Constituents []ConstituentInfo `json:"constituents"`
}

// ExecutionResponse is returned from buy and sell.
type ExecutionResponse struct {
	Execution *engine.Result `json:"execution"`
	// Channel is the WebSocket channel carrying order status updates.
	Channel string `json:"channel"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	// Reconcile is set when a transaction was mined but its orders could not be read back.
	Reconcile bool   `json:"reconcile,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
}

// ==============================
// REST Request Types
// ==============================

// BuyRequest is the payload for POST /api/v1/crates/{id}/buy
type BuyRequest struct {
	Amount string `json:"amount"` // payment token, human units
}

type HoldingRequest struct {
	StockID string `json:"stockId"`
	Shares  string `json:"shares"`
}

// SellRequest is the payload for POST /api/v1/crates/{id}/sell. Without
// amount every listed holding is liquidated.
type SellRequest struct {
	Holdings []HoldingRequest `json:"holdings"`
	Amount   string           `json:"amount,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the envelope for all server-to-client WebSocket messages
type WSMessage struct {
	Type    string      `json:"type"` // "subscribed", "unsubscribed", "execution_status"
	Channel string      `json:"channel,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["executions:5f0c..."]
}

func executionChannel(id string) string { return "executions:" + id }

func crateInfo(c *basket.Crate, chainID *big.Int) CrateInfo {
	info := CrateInfo{ID: c.ID, Name: c.Name, Description: c.Description, Constituents: make([]ConstituentInfo, len(c.Constituents))}
	for i, cs := range c.Constituents {
		info.Constituents[i] = ConstituentInfo{
			StockID: cs.StockID,
			Symbol:  cs.Symbol,
			Weight:  cs.Weight.String(),
			Price:   cs.Price.String(),
			Tokens:  cs.Tokens,
		}
		if token, ok := cs.TokenFor(chainID); ok {
			info.Constituents[i].Token = token.Hex()
		}
	}
	return info
}

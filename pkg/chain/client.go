// Package chain connects the engine to an EVM JSON-RPC endpoint: contract
// reads, block time, and a local-key wallet that signs EIP-1559 transactions.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/uhyunpark/cratex/pkg/contracts"
)

// Backend is the subset of *ethclient.Client used here.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Client struct {
	backend Backend
	chainID *big.Int
}

func NewClient(backend Backend, chainID *big.Int) *Client {
	return &Client{backend: backend, chainID: new(big.Int).Set(chainID)}
}

// Dial connects to rpcURL and checks that it serves the expected chain.
func Dial(ctx context.Context, rpcURL string, chainID *big.Int) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	remote, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain id from %s: %w", rpcURL, err)
	}
	if remote.Cmp(chainID) != 0 {
		ec.Close()
		return nil, fmt.Errorf("rpc %s serves chain %s, configured %s", rpcURL, remote, chainID)
	}
	return NewClient(ec, chainID), nil
}

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *Client) Backend() Backend { return c.backend }

// ReadContract packs call, runs eth_call at the latest block and unpacks the outputs.
func (c *Client) ReadContract(ctx context.Context, call contracts.Call) ([]interface{}, error) {
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", call.Method, err)
	}
	to := call.To
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	values, err := call.ABI.Unpack(call.Method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", call.Method, err)
	}
	return values, nil
}

func (c *Client) BlockTimestamp(ctx context.Context) (uint64, error) {
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	return head.Time, nil
}

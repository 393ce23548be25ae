// Package contracts holds the ABI surface of the order-processor settlement
// contract and of the ERC-20 permit tokens it pulls from.
package contracts

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Order-processor enums as encoded on chain.
const (
	OrderTypeMarket uint8 = 0
	OrderTypeLimit  uint8 = 1

	// TIFDefault is the time-in-force code sent with every order.
	TIFDefault uint8 = 1

	StatusNone      uint8 = 0
	StatusActive    uint8 = 1
	StatusFulfilled uint8 = 2
	StatusCancelled uint8 = 3
)

// Method and event names.
const (
	MethodSelfPermit            = "selfPermit"
	MethodCreateOrder           = "createOrder"
	MethodMulticall             = "multicall"
	MethodGetOrderStatus        = "getOrderStatus"
	MethodOrderDecimalReduction = "orderDecimalReduction"
	EventOrderCreated           = "OrderCreated"

	MethodName      = "name"
	MethodVersion   = "version"
	MethodDecimals  = "decimals"
	MethodNonces    = "nonces"
	MethodBalanceOf = "balanceOf"
)

// Order mirrors IOrderProcessor.Order.
type Order struct {
	RequestTimestamp     uint64         `abi:"requestTimestamp"`
	Recipient            common.Address `abi:"recipient"`
	AssetToken           common.Address `abi:"assetToken"`
	PaymentToken         common.Address `abi:"paymentToken"`
	Sell                 bool           `abi:"sell"`
	OrderType            uint8          `abi:"orderType"`
	AssetTokenQuantity   *big.Int       `abi:"assetTokenQuantity"`
	PaymentTokenQuantity *big.Int       `abi:"paymentTokenQuantity"`
	Price                *big.Int       `abi:"price"`
	Tif                  uint8          `abi:"tif"`
}

// FeeQuote mirrors IOrderProcessor.FeeQuote, the signed part of a fee quote.
type FeeQuote struct {
	OrderId   *big.Int       `abi:"orderId"`
	Requester common.Address `abi:"requester"`
	Fee       *big.Int       `abi:"fee"`
	Timestamp uint64         `abi:"timestamp"`
	Deadline  uint64         `abi:"deadline"`
}

// Call is one read-only contract invocation.
type Call struct {
	To     common.Address
	ABI    *abi.ABI
	Method string
	Args   []interface{}
}

// Reader executes read-only contract calls against the active chain.
type Reader interface {
	ReadContract(ctx context.Context, call Call) ([]interface{}, error)
}

var (
	OrderProcessorABI = mustParse(orderProcessorJSON)
	PermitTokenABI    = mustParse(permitTokenJSON)
)

func mustParse(def string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contracts: invalid ABI: " + err.Error())
	}
	return &parsed
}

// ProcessorCall builds a Call against the order processor.
func ProcessorCall(processor common.Address, method string, args ...interface{}) Call {
	return Call{To: processor, ABI: OrderProcessorABI, Method: method, Args: args}
}

// TokenCall builds a Call against an ERC-20 permit token.
func TokenCall(token common.Address, method string, args ...interface{}) Call {
	return Call{To: token, ABI: PermitTokenABI, Method: method, Args: args}
}

const orderTuple = `[
	{"internalType":"uint64","name":"requestTimestamp","type":"uint64"},
	{"internalType":"address","name":"recipient","type":"address"},
	{"internalType":"address","name":"assetToken","type":"address"},
	{"internalType":"address","name":"paymentToken","type":"address"},
	{"internalType":"bool","name":"sell","type":"bool"},
	{"internalType":"enum IOrderProcessor.OrderType","name":"orderType","type":"uint8"},
	{"internalType":"uint256","name":"assetTokenQuantity","type":"uint256"},
	{"internalType":"uint256","name":"paymentTokenQuantity","type":"uint256"},
	{"internalType":"uint256","name":"price","type":"uint256"},
	{"internalType":"enum IOrderProcessor.TIF","name":"tif","type":"uint8"}
]`

const feeQuoteTuple = `[
	{"internalType":"uint256","name":"orderId","type":"uint256"},
	{"internalType":"address","name":"requester","type":"address"},
	{"internalType":"uint256","name":"fee","type":"uint256"},
	{"internalType":"uint64","name":"timestamp","type":"uint64"},
	{"internalType":"uint64","name":"deadline","type":"uint64"}
]`

var orderProcessorJSON = `[
{
	"type":"function","name":"selfPermit","stateMutability":"nonpayable",
	"inputs":[
		{"internalType":"address","name":"permitToken","type":"address"},
		{"internalType":"address","name":"owner","type":"address"},
		{"internalType":"uint256","name":"value","type":"uint256"},
		{"internalType":"uint256","name":"deadline","type":"uint256"},
		{"internalType":"uint8","name":"v","type":"uint8"},
		{"internalType":"bytes32","name":"r","type":"bytes32"},
		{"internalType":"bytes32","name":"s","type":"bytes32"}
	],
	"outputs":[]
},
{
	"type":"function","name":"createOrder","stateMutability":"nonpayable",
	"inputs":[
		{"internalType":"struct IOrderProcessor.Order","name":"order","type":"tuple","components":` + orderTuple + `},
		{"internalType":"struct IOrderProcessor.FeeQuote","name":"feeQuote","type":"tuple","components":` + feeQuoteTuple + `},
		{"internalType":"bytes","name":"feeQuoteSignature","type":"bytes"}
	],
	"outputs":[{"internalType":"uint256","name":"id","type":"uint256"}]
},
{
	"type":"function","name":"multicall","stateMutability":"nonpayable",
	"inputs":[{"internalType":"bytes[]","name":"data","type":"bytes[]"}],
	"outputs":[{"internalType":"bytes[]","name":"results","type":"bytes[]"}]
},
{
	"type":"function","name":"getOrderStatus","stateMutability":"view",
	"inputs":[{"internalType":"uint256","name":"id","type":"uint256"}],
	"outputs":[{"internalType":"enum IOrderProcessor.OrderStatus","name":"","type":"uint8"}]
},
{
	"type":"function","name":"orderDecimalReduction","stateMutability":"view",
	"inputs":[{"internalType":"address","name":"","type":"address"}],
	"outputs":[{"internalType":"uint8","name":"","type":"uint8"}]
},
{
	"type":"event","name":"OrderCreated","anonymous":false,
	"inputs":[
		{"indexed":true,"internalType":"uint256","name":"id","type":"uint256"},
		{"indexed":true,"internalType":"address","name":"requester","type":"address"},
		{"indexed":false,"internalType":"struct IOrderProcessor.Order","name":"order","type":"tuple","components":` + orderTuple + `},
		{"indexed":false,"internalType":"uint256","name":"feesEscrowed","type":"uint256"}
	]
}
]`

const permitTokenJSON = `[
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"internalType":"string","name":"","type":"string"}]},
{"type":"function","name":"version","stateMutability":"view","inputs":[],"outputs":[{"internalType":"string","name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"internalType":"uint8","name":"","type":"uint8"}]},
{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"internalType":"address","name":"owner","type":"address"}],"outputs":[{"internalType":"uint256","name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"internalType":"address","name":"account","type":"address"}],"outputs":[{"internalType":"uint256","name":"","type":"uint256"}]}
]`

package contracts

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestSelectors(t *testing.T) {
	cases := []struct {
		method string
		sig    string
	}{
		{MethodSelfPermit, "selfPermit(address,address,uint256,uint256,uint8,bytes32,bytes32)"},
		{MethodMulticall, "multicall(bytes[])"},
		{MethodGetOrderStatus, "getOrderStatus(uint256)"},
		{MethodOrderDecimalReduction, "orderDecimalReduction(address)"},
		{MethodCreateOrder, "createOrder((uint64,address,address,address,bool,uint8,uint256,uint256,uint256,uint8),(uint256,address,uint256,uint64,uint64),bytes)"},
	}
	for _, tc := range cases {
		m, ok := OrderProcessorABI.Methods[tc.method]
		if !ok {
			t.Fatalf("method %s missing", tc.method)
		}
		want := crypto.Keccak256([]byte(tc.sig))[:4]
		if !bytes.Equal(m.ID, want) {
			t.Fatalf("%s selector = %x, want %x", tc.method, m.ID, want)
		}
	}

	ev := OrderProcessorABI.Events[EventOrderCreated]
	wantTopic := crypto.Keccak256Hash([]byte("OrderCreated(uint256,address,(uint64,address,address,address,bool,uint8,uint256,uint256,uint256,uint8),uint256)"))
	if ev.ID != wantTopic {
		t.Fatalf("OrderCreated topic = %s, want %s", ev.ID.Hex(), wantTopic.Hex())
	}
}

func TestCreateOrderRoundTrip(t *testing.T) {
	order := Order{
		RequestTimestamp:     1700000000,
		Recipient:            common.HexToAddress("0x01"),
		AssetToken:           common.HexToAddress("0x02"),
		PaymentToken:         common.HexToAddress("0x03"),
		OrderType:            OrderTypeMarket,
		AssetTokenQuantity:   big.NewInt(0),
		PaymentTokenQuantity: big.NewInt(300_000_000),
		Price:                big.NewInt(0),
		Tif:                  TIFDefault,
	}
	quote := FeeQuote{
		OrderId:   big.NewInt(42),
		Requester: common.HexToAddress("0x01"),
		Fee:       big.NewInt(1_000_000),
		Timestamp: 1700000000,
		Deadline:  1700000300,
	}
	data, err := OrderProcessorABI.Pack(MethodCreateOrder, order, quote, []byte{0xde, 0xad})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	args, err := OrderProcessorABI.Methods[MethodCreateOrder].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(args) != 3 {
		t.Fatalf("args = %d, want 3", len(args))
	}
	sig, ok := args[2].([]byte)
	if !ok || !bytes.Equal(sig, []byte{0xde, 0xad}) {
		t.Fatalf("signature arg = %v", args[2])
	}
}

func TestCallBuilders(t *testing.T) {
	token := common.HexToAddress("0x0a")
	c := TokenCall(token, MethodNonces, common.HexToAddress("0x0b"))
	if c.ABI != PermitTokenABI || c.To != token || len(c.Args) != 1 {
		t.Fatalf("unexpected call %+v", c)
	}
	if _, err := c.ABI.Pack(c.Method, c.Args...); err != nil {
		t.Fatalf("pack nonces: %v", err)
	}
}

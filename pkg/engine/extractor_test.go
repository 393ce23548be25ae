package engine

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/cratex/pkg/contracts"
)

func orderCreatedLog(addr common.Address, id int64, index uint) *types.Log {
	return &types.Log{
		Address: addr,
		Topics: []common.Hash{
			contracts.OrderProcessorABI.Events[contracts.EventOrderCreated].ID,
			common.BigToHash(big.NewInt(id)),
			common.BytesToHash(common.HexToAddress("0x01").Bytes()),
		},
		Index: index,
	}
}

func TestExtractOrderIDsInLogOrder(t *testing.T) {
	receipt := &types.Receipt{
		TxHash: common.HexToHash("0xabc"),
		Logs: []*types.Log{
			orderCreatedLog(testProcessor, 12, 4),
			{Address: testUSDC, Topics: []common.Hash{{0x09}}, Index: 0},
			orderCreatedLog(tokenA, 99, 1), // same event from another contract
			orderCreatedLog(testProcessor, 11, 2),
		},
	}
	got, err := ExtractOrderIDs(receipt, testProcessor, 2)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 2 || got[0].Int64() != 11 || got[1].Int64() != 12 {
		t.Fatalf("ids = %v, want [11 12]", got)
	}
}

func TestExtractOrderIDsMismatch(t *testing.T) {
	receipt := &types.Receipt{
		TxHash: common.HexToHash("0xdef"),
		Logs:   []*types.Log{orderCreatedLog(testProcessor, 1, 0)},
	}
	_, err := ExtractOrderIDs(receipt, testProcessor, 3)
	var ire *InconsistentReceiptError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InconsistentReceiptError", err)
	}
	if ire.TxHash != receipt.TxHash || ire.Expected != 3 || ire.Got != 1 {
		t.Fatalf("error = %+v", ire)
	}
}

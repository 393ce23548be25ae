package engine

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/cratex/pkg/contracts"
)

// ExtractOrderIDs returns the ids of OrderCreated events emitted by
// processor, in log order. The count must equal expected.
func ExtractOrderIDs(receipt *types.Receipt, processor common.Address, expected int) ([]*big.Int, error) {
	event := contracts.OrderProcessorABI.Events[contracts.EventOrderCreated]
	var indexed abi.Arguments
	for _, in := range event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}

	logs := append([]*types.Log(nil), receipt.Logs...)
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Index < logs[j].Index })

	var ids []*big.Int
	for _, lg := range logs {
		if lg.Address != processor || len(lg.Topics) == 0 || lg.Topics[0] != event.ID {
			continue
		}
		fields := make(map[string]interface{})
		if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
			return nil, &InconsistentReceiptError{TxHash: receipt.TxHash, Expected: expected, Got: len(ids)}
		}
		id, ok := fields["id"].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: OrderCreated without id in %s", ErrInconsistentReceipt, receipt.TxHash.Hex())
		}
		ids = append(ids, id)
	}
	if len(ids) != expected {
		return nil, &InconsistentReceiptError{TxHash: receipt.TxHash, Expected: expected, Got: len(ids)}
	}
	return ids, nil
}

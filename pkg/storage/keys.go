package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	exec:<executionID>                    → Record (JSON)
//	wexec:<wallet>:<createdAt BE u64>:<id> → executionID
//	tx:<txHash>                            → executionID
const (
	prefixExecution = "exec:"
	prefixWallet    = "wexec:"
	prefixTx        = "tx:"
)

func executionKey(id string) []byte {
	return []byte(prefixExecution + id)
}

func walletPrefix(wallet common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixWallet, wallet.Hex()))
}

// walletKey sorts a wallet's executions by creation time.
func walletKey(wallet common.Address, createdAtMs int64, id string) []byte {
	k := walletPrefix(wallet)
	k = append(k, millisKey(createdAtMs)...)
	k = append(k, ':')
	return append(k, id...)
}

func txKey(hash common.Hash) []byte {
	return []byte(prefixTx + hash.Hex())
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

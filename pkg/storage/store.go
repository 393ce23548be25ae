// Package storage persists executed batches and their order statuses.
package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/cratex/pkg/engine"
)

var ErrNotFound = errors.New("execution not found")

// Store is the local execution history.
type Store interface {
	engine.Recorder
	engine.StatusSink
	LoadExecution(id string) (*engine.Record, error)
	FindByTxHash(hash common.Hash) (*engine.Record, error)
	// ListByWallet returns up to limit executions, newest first. limit <= 0 means all.
	ListByWallet(wallet common.Address, limit int) ([]*engine.Record, error)
	Close() error
}

var (
	_ Store = (*PebbleStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

func applySnapshot(rec *engine.Record, snap engine.Snapshot) {
	rec.Status = &snap
}

func checkContext(ctx context.Context) error {
	return ctx.Err()
}

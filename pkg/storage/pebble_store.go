package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/cratex/pkg/engine"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	return OpenPebbleStore(path, &pebble.Options{})
}

// OpenPebbleStore opens with caller-provided options (tests pass an in-memory FS).
func OpenPebbleStore(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// RecordExecution writes the record and its wallet and tx indexes in one batch.
func (s *PebbleStore) RecordExecution(ctx context.Context, rec engine.Record) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	val, err := encodeRecord(&rec)
	if err != nil {
		return err
	}
	r := rec.Result
	id := []byte(r.ID)

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(executionKey(r.ID), val, nil); err != nil {
		return err
	}
	if err := b.Set(walletKey(r.Wallet, r.CreatedAt.UnixMilli(), r.ID), id, nil); err != nil {
		return err
	}
	if r.TxHash != (common.Hash{}) {
		if err := b.Set(txKey(r.TxHash), id, nil); err != nil {
			return err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("save execution %s: %w", r.ID, err)
	}
	return nil
}

// UpdateOrderStatuses attaches the latest tracker snapshot to its execution.
func (s *PebbleStore) UpdateOrderStatuses(ctx context.Context, snap engine.Snapshot) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	rec, err := s.LoadExecution(snap.ExecutionID)
	if err != nil {
		return err
	}
	applySnapshot(rec, snap)
	val, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.db.Set(executionKey(snap.ExecutionID), val, pebble.NoSync); err != nil {
		return fmt.Errorf("save order statuses %s: %w", snap.ExecutionID, err)
	}
	return nil
}

func (s *PebbleStore) LoadExecution(id string) (*engine.Record, error) {
	data, closer, err := s.db.Get(executionKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	defer closer.Close()
	return decodeRecord(data)
}

func (s *PebbleStore) FindByTxHash(hash common.Hash) (*engine.Record, error) {
	id, closer, err := s.db.Get(txKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("tx %s: %w", hash.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tx index: %w", err)
	}
	execID := string(id)
	closer.Close()
	return s.LoadExecution(execID)
}

func (s *PebbleStore) ListByWallet(wallet common.Address, limit int) ([]*engine.Record, error) {
	prefix := walletPrefix(wallet)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []string
	for iter.Last(); iter.Valid() && (limit <= 0 || len(ids) < limit); iter.Prev() {
		ids = append(ids, string(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	out := make([]*engine.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.LoadExecution(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

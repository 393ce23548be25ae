package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/cratex/pkg/engine"
)

// MemoryStore keeps encoded records in maps. Used when no data dir is configured.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string][]byte
	byTx     map[common.Hash]string
	byWallet map[common.Address][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string][]byte),
		byTx:     make(map[common.Hash]string),
		byWallet: make(map[common.Address][]string),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) RecordExecution(ctx context.Context, rec engine.Record) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	val, err := encodeRecord(&rec)
	if err != nil {
		return err
	}
	r := rec.Result

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		s.byWallet[r.Wallet] = append(s.byWallet[r.Wallet], r.ID)
	}
	s.records[r.ID] = val
	if r.TxHash != (common.Hash{}) {
		s.byTx[r.TxHash] = r.ID
	}
	return nil
}

func (s *MemoryStore) UpdateOrderStatuses(ctx context.Context, snap engine.Snapshot) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load(snap.ExecutionID)
	if err != nil {
		return err
	}
	applySnapshot(rec, snap)
	val, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	s.records[snap.ExecutionID] = val
	return nil
}

func (s *MemoryStore) LoadExecution(id string) (*engine.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(id)
}

func (s *MemoryStore) FindByTxHash(hash common.Hash) (*engine.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTx[hash]
	if !ok {
		return nil, fmt.Errorf("tx %s: %w", hash.Hex(), ErrNotFound)
	}
	return s.load(id)
}

func (s *MemoryStore) ListByWallet(wallet common.Address, limit int) ([]*engine.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*engine.Record
	for _, id := range s.byWallet[wallet] {
		rec, err := s.load(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.CreatedAt.After(out[j].Result.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) load(id string) (*engine.Record, error) {
	val, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return decodeRecord(val)
}

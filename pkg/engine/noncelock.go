package engine

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type lockKey struct {
	wallet common.Address
	token  common.Address
}

// NonceLocks serializes permit signing and submission per (wallet, token).
// Two executions that would sign against the same on-chain permit nonce
// never overlap.
type NonceLocks struct {
	mu    sync.Mutex
	slots map[lockKey]chan struct{}
}

func NewNonceLocks() *NonceLocks {
	return &NonceLocks{slots: make(map[lockKey]chan struct{})}
}

func (l *NonceLocks) slot(k lockKey) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[k]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[k] = ch
	}
	return ch
}

// Acquire locks every (wallet, token) pair in address order. The returned
// release func is idempotent.
func (l *NonceLocks) Acquire(ctx context.Context, wallet common.Address, tokens ...common.Address) (func(), error) {
	sorted := dedupeSorted(tokens)
	held := make([]chan struct{}, 0, len(sorted))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}
	for _, t := range sorted {
		ch := l.slot(lockKey{wallet: wallet, token: t})
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			unlock()
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() { once.Do(unlock) }, nil
}

func dedupeSorted(tokens []common.Address) []common.Address {
	out := append([]common.Address(nil), tokens...)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	n := 0
	for i, t := range out {
		if i > 0 && t == out[n-1] {
			continue
		}
		out[n] = t
		n++
	}
	return out[:n]
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestNonceLocksSerializeSameToken(t *testing.T) {
	locks := NewNonceLocks()
	wallet := common.HexToAddress("0x01")

	release, err := locks.Acquire(context.Background(), wallet, testUSDC)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := locks.Acquire(ctx, wallet, tokenA, testUSDC); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded while held", err)
	}

	// the failed attempt must not have kept tokenA
	r2, err := locks.Acquire(context.Background(), wallet, tokenA)
	if err != nil {
		t.Fatalf("acquire tokenA: %v", err)
	}
	r2()

	// other wallets are independent
	r3, err := locks.Acquire(context.Background(), common.HexToAddress("0x02"), testUSDC)
	if err != nil {
		t.Fatalf("acquire other wallet: %v", err)
	}
	r3()

	release()
	release()
	r4, err := locks.Acquire(context.Background(), wallet, testUSDC, testUSDC)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	r4()
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

func TestClassifySubmitErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"url error", &url.Error{Op: "Post", URL: "http://rpc", Err: errors.New("dial")}, ErrNetwork},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, ErrNetwork},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), ErrNetwork},
		{"refused text", errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), ErrNetwork},
		{"revert", errors.New("execution reverted: ERC20: insufficient allowance"), ErrSubmissionReverted},
		{"already rejected", fmt.Errorf("wrap: %w", ErrSubmissionRejected), ErrSubmissionRejected},
	}
	for _, tc := range cases {
		if got := classifySubmitErr(tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("%s: classify = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestErrorKind(t *testing.T) {
	if got := ErrorKind(nil); got != "success" {
		t.Fatalf("kind(nil) = %s", got)
	}
	if got := ErrorKind(&InconsistentReceiptError{}); got != "inconsistent_receipt" {
		t.Fatalf("kind = %s, want inconsistent_receipt", got)
	}
	if got := ErrorKind(fmt.Errorf("x: %w", ErrPrecisionExceeded)); got != "precision_exceeded" {
		t.Fatalf("kind = %s, want precision_exceeded", got)
	}
}

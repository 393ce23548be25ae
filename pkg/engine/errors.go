package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAllocation   = errors.New("invalid allocation")
	ErrQuoteUnavailable    = errors.New("fee quote unavailable")
	ErrPrecisionExceeded   = errors.New("order amount precision exceeded")
	ErrSubmissionRejected  = errors.New("submission rejected by wallet")
	ErrSubmissionReverted  = errors.New("submission reverted")
	ErrNetwork             = errors.New("network error")
	ErrInconsistentReceipt = errors.New("inconsistent receipt")
	ErrStatusTimeout       = errors.New("order status polling timed out")
)

// InconsistentReceiptError means the batch was mined but the number of
// OrderCreated events does not match the submitted order calls. The
// on-chain state must be reconciled by hand.
type InconsistentReceiptError struct {
	TxHash   common.Hash
	Expected int
	Got      int
}

func (e *InconsistentReceiptError) Error() string {
	return fmt.Sprintf("inconsistent receipt %s: expected %d OrderCreated events, got %d",
		e.TxHash.Hex(), e.Expected, e.Got)
}

func (e *InconsistentReceiptError) Unwrap() error { return ErrInconsistentReceipt }

// StatusTimeoutError carries the last observed snapshot. Pending orders may
// still fill later.
type StatusTimeoutError struct {
	Polls int
	Last  Snapshot
}

func (e *StatusTimeoutError) Error() string {
	return fmt.Sprintf("order status polling timed out after %d polls (%d/%d terminal)",
		e.Polls, e.Last.TerminalCount, e.Last.Total)
}

func (e *StatusTimeoutError) Unwrap() error { return ErrStatusTimeout }

// classifySubmitErr maps a send/estimate failure onto the submission taxonomy.
// Errors already classified are returned unchanged.
func classifySubmitErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrSubmissionRejected),
		errors.Is(err, ErrSubmissionReverted),
		errors.Is(err, ErrNetwork):
		return err
	case errors.Is(err, context.Canceled):
		return err
	}
	if isTransportErr(err) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return fmt.Errorf("%w: %v", ErrSubmissionReverted, err)
}

func isTransportErr(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host")
}

// ErrorKind names the taxonomy class of err for metrics and API payloads.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidAllocation):
		return "invalid_allocation"
	case errors.Is(err, ErrQuoteUnavailable):
		return "quote_unavailable"
	case errors.Is(err, ErrPrecisionExceeded):
		return "precision_exceeded"
	case errors.Is(err, ErrSubmissionRejected):
		return "submission_rejected"
	case errors.Is(err, ErrSubmissionReverted):
		return "submission_reverted"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrInconsistentReceipt):
		return "inconsistent_receipt"
	case errors.Is(err, ErrStatusTimeout):
		return "status_timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

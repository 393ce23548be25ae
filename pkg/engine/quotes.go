package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/cratex/pkg/util"
)

// fetchQuotes requests one quote per request concurrently. With fatal set
// the first failure cancels the rest and is returned. Otherwise failures
// are reported per index and the returned error is nil.
func (e *Executor) fetchQuotes(ctx context.Context, reqs []QuoteRequest, fatal bool) ([]*FeeQuote, []error, error) {
	quotes := make([]*FeeQuote, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.QuoteConcurrency)
	for i := range reqs {
		g.Go(func() error {
			q, err := e.quoteWithRetry(gctx, reqs[i])
			if err != nil {
				errs[i] = err
				if fatal {
					return err
				}
				return nil
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errs, err
	}
	return quotes, errs, nil
}

// quoteWithRetry makes at most two attempts.
func (e *Executor) quoteWithRetry(ctx context.Context, req QuoteRequest) (*FeeQuote, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		q, err := e.quoter.FeeQuote(ctx, req)
		if err == nil {
			err = validateQuote(q, req)
		}
		if err == nil {
			return q, nil
		}
		lastErr = err
		if e.Observer != nil {
			e.Observer.QuoteFailed()
		}
		if ctx.Err() != nil {
			break
		}
		if attempt == 1 {
			e.logger().Warnw("fee_quote_retry", "stock", req.StockID, "side", req.Side, "err", err)
			if e.cfg.QuoteRetryDelay > 0 {
				if err := util.Sleep(ctx, e.clock(), e.cfg.QuoteRetryDelay); err != nil {
					break
				}
			}
		}
	}
	if errors.Is(lastErr, ErrQuoteUnavailable) {
		return nil, fmt.Errorf("stock %s: %w", req.StockID, lastErr)
	}
	return nil, fmt.Errorf("%w: stock %s: %v", ErrQuoteUnavailable, req.StockID, lastErr)
}

func validateQuote(q *FeeQuote, req QuoteRequest) error {
	switch {
	case q == nil:
		return fmt.Errorf("%w: empty quote", ErrQuoteUnavailable)
	case q.Fee == nil || q.Fee.Sign() < 0:
		return fmt.Errorf("%w: invalid fee", ErrQuoteUnavailable)
	case q.OrderID == nil:
		return fmt.Errorf("%w: missing quote order id", ErrQuoteUnavailable)
	case len(q.Signature) == 0:
		return fmt.Errorf("%w: unsigned quote", ErrQuoteUnavailable)
	case q.Requester != req.Requester:
		return fmt.Errorf("%w: quote requester %s, want %s", ErrQuoteUnavailable, q.Requester.Hex(), req.Requester.Hex())
	}
	return nil
}

// checkExpiry rejects quotes that expired by block time now.
func checkExpiry(quotes []*FeeQuote, stocks []string, now uint64) error {
	for i, q := range quotes {
		if q != nil && q.Expired(now) {
			return fmt.Errorf("%w: quote for %s expired at %d (block time %d)", ErrQuoteUnavailable, stocks[i], q.Deadline, now)
		}
	}
	return nil
}

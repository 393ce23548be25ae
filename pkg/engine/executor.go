package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/cratex/pkg/basket"
	"github.com/uhyunpark/cratex/pkg/contracts"
	"github.com/uhyunpark/cratex/pkg/util"
)

type Config struct {
	OrderProcessor  common.Address
	PaymentToken    common.Address
	PaymentDecimals int32
	// PermitWindow is added to the latest block time to form permit deadlines.
	PermitWindow          time.Duration
	QuoteConcurrency      int
	QuoteRetryDelay       time.Duration
	SellQuoteFailureFatal bool
}

// Executor runs the buy and sell pipelines: allocate, quote, permit,
// encode, submit, extract, record.
type Executor struct {
	cfg    Config
	chain  ChainReader
	quoter FeeQuoter
	locks  *NonceLocks

	Recorder Recorder
	Journal  Journal
	Observer Observer
	Clock    util.Clock
	Logger   *zap.SugaredLogger
}

func NewExecutor(cfg Config, chain ChainReader, quoter FeeQuoter) *Executor {
	if cfg.QuoteConcurrency <= 0 {
		cfg.QuoteConcurrency = 4
	}
	if cfg.PermitWindow <= 0 {
		cfg.PermitWindow = 300 * time.Second
	}
	return &Executor{cfg: cfg, chain: chain, quoter: quoter, locks: NewNonceLocks()}
}

func (e *Executor) Config() Config { return e.cfg }

type BuyRequest struct {
	Wallet       Wallet
	AccountID    string
	CrateID      string
	Constituents []basket.Constituent
	// TotalAmount is in payment token smallest units.
	TotalAmount *big.Int
}

type Holding struct {
	Constituent basket.Constituent
	Shares      decimal.Decimal
}

type SellRequest struct {
	Wallet    Wallet
	AccountID string
	CrateID   string
	Holdings  []Holding
	// RedeemAmount, when positive, sells holdings worth this many payment
	// units split by weight. Otherwise every holding is sold in full.
	RedeemAmount *big.Int
}

// batch is a fully signed execution ready for submission.
type batch struct {
	side      Side
	wallet    Wallet
	accountID string
	crateID   string
	permits   []*PermitAuthorization
	orders    []OrderRequest
	skipped   []Skip
	remainder *big.Int
	total     *big.Int
	spent     *big.Int
	fees      *big.Int
	warnings  []string
}

// Buy spends req.TotalAmount across the crate in one atomic multicall.
func (e *Executor) Buy(ctx context.Context, req BuyRequest) (res *Result, err error) {
	start := e.clock().Now()
	defer func() { e.finished(SideBuy, start, err) }()
	if req.Wallet == nil {
		return nil, errors.New("buy: wallet required")
	}
	owner := req.Wallet.Address()
	chainID := e.chain.ChainID()

	eligible, skipped := ResolveConstituents(chainID, req.Constituents)
	alloc, err := Allocate(req.TotalAmount, eligible, SideBuy)
	if err != nil {
		return nil, err
	}
	skipped = append(skipped, alloc.Skipped...)
	if len(alloc.Lines) == 0 {
		return nil, fmt.Errorf("%w: no constituent can be bought on chain %s", ErrInvalidAllocation, chainID)
	}
	if alloc.Remainder.Sign() > 0 {
		e.logger().Infow("allocation_remainder", "crate", req.CrateID, "remainder", alloc.Remainder.String(), "lines", len(alloc.Lines))
	}

	qreqs := make([]QuoteRequest, len(alloc.Lines))
	stocks := make([]string, len(alloc.Lines))
	for i, line := range alloc.Lines {
		qreqs[i] = QuoteRequest{
			AccountID:       req.AccountID,
			ChainID:         chainID,
			StockID:         line.Constituent.StockID,
			Side:            SideBuy,
			Requester:       owner,
			PaymentToken:    e.cfg.PaymentToken,
			PaymentQuantity: line.Amount,
			PaymentDecimals: e.cfg.PaymentDecimals,
		}
		stocks[i] = line.Constituent.StockID
	}
	// The shared permit value depends on every quote, so any failure is fatal.
	quotes, _, err := e.fetchQuotes(ctx, qreqs, true)
	if err != nil {
		return nil, err
	}

	release, err := e.locks.Acquire(ctx, owner, e.cfg.PaymentToken)
	if err != nil {
		return nil, err
	}
	defer release()

	now, err := blockTime(ctx, e.chain)
	if err != nil {
		return nil, err
	}
	if err := checkExpiry(quotes, stocks, now); err != nil {
		return nil, err
	}

	b := &batch{
		side: SideBuy, wallet: req.Wallet, accountID: req.AccountID, crateID: req.CrateID,
		skipped: skipped, remainder: alloc.Remainder, total: new(big.Int).Set(req.TotalAmount),
		fees: new(big.Int),
	}
	allocated := new(big.Int)
	for i, line := range alloc.Lines {
		est := estimateShares(line.Amount, quotes[i].Fee, e.cfg.PaymentDecimals, line.Constituent.Price)
		b.orders = append(b.orders, OrderRequest{
			Line:            line,
			Quote:           quotes[i],
			AssetQuantity:   new(big.Int),
			PaymentQuantity: line.Amount,
			Shares:          est,
			Estimate:        est,
		})
		allocated.Add(allocated, line.Amount)
		b.fees.Add(b.fees, quotes[i].Fee)
	}
	b.spent = new(big.Int).Add(allocated, b.fees)

	permit, err := e.signPermit(ctx, req.Wallet, e.cfg.PaymentToken, b.spent, e.deadline(now))
	if err != nil {
		return nil, err
	}
	b.permits = []*PermitAuthorization{permit}

	return e.execute(ctx, b, release)
}

// sellLine is one holding sized for sale.
type sellLine struct {
	line     AllocationLine
	units    *big.Int
	decimals uint8
}

// Sell liquidates holdings in one atomic multicall, one permit per asset token.
func (e *Executor) Sell(ctx context.Context, req SellRequest) (res *Result, err error) {
	start := e.clock().Now()
	defer func() { e.finished(SideSell, start, err) }()
	if req.Wallet == nil {
		return nil, errors.New("sell: wallet required")
	}
	owner := req.Wallet.Address()
	chainID := e.chain.ChainID()

	cs := make([]basket.Constituent, len(req.Holdings))
	shares := make(map[string]decimal.Decimal, len(req.Holdings))
	for i, h := range req.Holdings {
		if h.Shares.IsNegative() {
			return nil, fmt.Errorf("%w: negative shares for %s", ErrInvalidAllocation, h.Constituent.Symbol)
		}
		if _, dup := shares[h.Constituent.StockID]; dup {
			return nil, fmt.Errorf("%w: %s listed more than once", ErrInvalidAllocation, h.Constituent.Symbol)
		}
		cs[i] = h.Constituent
		shares[h.Constituent.StockID] = h.Shares
	}
	eligible, skipped := ResolveConstituents(chainID, cs)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: no holding can be sold on chain %s", ErrInvalidAllocation, chainID)
	}

	var redeem map[string]*big.Int
	remainder := new(big.Int)
	if req.RedeemAmount != nil && req.RedeemAmount.Sign() > 0 {
		alloc, err := Allocate(req.RedeemAmount, eligible, SideSell)
		if err != nil {
			return nil, err
		}
		skipped = append(skipped, alloc.Skipped...)
		remainder = alloc.Remainder
		redeem = make(map[string]*big.Int, len(alloc.Lines))
		for _, l := range alloc.Lines {
			redeem[l.Constituent.StockID] = l.Amount
		}
	}

	var lines []sellLine
	for _, el := range eligible {
		c := el.Constituent
		if redeem != nil && redeem[c.StockID] == nil {
			continue
		}
		sl, skip, err := e.sizeSell(ctx, owner, el, shares[c.StockID], redeem[c.StockID])
		if err != nil {
			return nil, err
		}
		if skip != nil {
			skipped = append(skipped, *skip)
			continue
		}
		lines = append(lines, *sl)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: nothing to sell", ErrInvalidAllocation)
	}

	qreqs := make([]QuoteRequest, len(lines))
	for i, sl := range lines {
		qreqs[i] = QuoteRequest{
			AccountID:       req.AccountID,
			ChainID:         chainID,
			StockID:         sl.line.Constituent.StockID,
			Side:            SideSell,
			Requester:       owner,
			PaymentToken:    e.cfg.PaymentToken,
			PaymentDecimals: e.cfg.PaymentDecimals,
			AssetQuantity:   sl.units,
			AssetDecimals:   int32(sl.decimals),
		}
	}
	quotes, qerrs, err := e.fetchQuotes(ctx, qreqs, e.cfg.SellQuoteFailureFatal)
	if err != nil {
		return nil, err
	}

	var kept []sellLine
	var keptQuotes []*FeeQuote
	for i, sl := range lines {
		if qerrs[i] != nil {
			skipped = append(skipped, Skip{
				StockID: sl.line.Constituent.StockID,
				Symbol:  sl.line.Constituent.Symbol,
				Reason:  SkipQuoteUnavailable,
				Detail:  qerrs[i].Error(),
			})
			continue
		}
		kept = append(kept, sl)
		keptQuotes = append(keptQuotes, quotes[i])
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no holding could be quoted", ErrQuoteUnavailable)
	}

	perToken := make(map[common.Address]*big.Int)
	var tokens []common.Address
	for _, sl := range kept {
		if perToken[sl.line.Token] == nil {
			perToken[sl.line.Token] = new(big.Int)
			tokens = append(tokens, sl.line.Token)
		}
		perToken[sl.line.Token].Add(perToken[sl.line.Token], sl.units)
	}

	release, err := e.locks.Acquire(ctx, owner, tokens...)
	if err != nil {
		return nil, err
	}
	defer release()

	now, err := blockTime(ctx, e.chain)
	if err != nil {
		return nil, err
	}
	stocks := make([]string, len(kept))
	for i, sl := range kept {
		stocks[i] = sl.line.Constituent.StockID
	}
	if err := checkExpiry(keptQuotes, stocks, now); err != nil {
		return nil, err
	}

	// Each token has its own nonce, so permits are signed concurrently.
	deadline := e.deadline(now)
	permits := make([]*PermitAuthorization, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		g.Go(func() error {
			p, err := e.signPermit(gctx, req.Wallet, token, perToken[token], deadline)
			if err != nil {
				return err
			}
			permits[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := &batch{
		side: SideSell, wallet: req.Wallet, accountID: req.AccountID, crateID: req.CrateID,
		permits: permits, skipped: skipped, remainder: remainder,
		total: new(big.Int), spent: new(big.Int), fees: new(big.Int),
	}
	if req.RedeemAmount != nil {
		b.total.Set(req.RedeemAmount)
	}
	for i, sl := range kept {
		q := keptQuotes[i]
		price := sl.line.Constituent.Price
		b.orders = append(b.orders, OrderRequest{
			Line:            sl.line,
			Quote:           q,
			AssetQuantity:   sl.units,
			PaymentQuantity: new(big.Int),
			Shares:          FromUnits(sl.units, int32(sl.decimals)),
			Estimate:        estimateProceeds(sl.units, int32(sl.decimals), price, q.Fee, e.cfg.PaymentDecimals),
		})
		gross := FromUnits(sl.units, int32(sl.decimals)).Mul(price)
		b.spent.Add(b.spent, floorUnits(gross, e.cfg.PaymentDecimals))
		b.fees.Add(b.fees, q.Fee)
	}
	// Unit flooring, precision truncation and skips can leave the estimate
	// short of the requested redemption.
	if b.total.Sign() > 0 && b.spent.Cmp(b.total) < 0 {
		short := new(big.Int).Sub(b.total, b.spent)
		e.logger().Infow("redeem_shortfall", "crate", req.CrateID, "requested", b.total.String(),
			"estimated", b.spent.String(), "shortfall", short.String())
		b.warnings = append(b.warnings, fmt.Sprintf("estimated proceeds %s fall short of requested %s by %s",
			FromUnits(b.spent, e.cfg.PaymentDecimals), FromUnits(b.total, e.cfg.PaymentDecimals),
			FromUnits(short, e.cfg.PaymentDecimals)))
	}

	return e.execute(ctx, b, release)
}

// sizeSell reads balance, decimals and the processor's decimal reduction
// for one holding and returns the unit quantity to sell.
func (e *Executor) sizeSell(ctx context.Context, owner common.Address, el Eligible, shares decimal.Decimal, redeemPayment *big.Int) (*sellLine, *Skip, error) {
	c := el.Constituent
	decimals, err := readUint8(ctx, e.chain, contracts.TokenCall(el.Token, contracts.MethodDecimals))
	if err != nil {
		return nil, nil, err
	}
	balance, err := readBig(ctx, e.chain, contracts.TokenCall(el.Token, contracts.MethodBalanceOf, owner))
	if err != nil {
		return nil, nil, err
	}

	held := floorUnits(shares, int32(decimals))
	units := new(big.Int).Set(held)
	if redeemPayment != nil {
		if !c.Price.IsPositive() {
			return nil, nil, fmt.Errorf("%w: %s has no reference price", ErrInvalidAllocation, c.Symbol)
		}
		value := FromUnits(redeemPayment, e.cfg.PaymentDecimals)
		units = floorUnits(value.Div(c.Price), int32(decimals))
		if units.Cmp(held) > 0 {
			units.Set(held)
		}
	}
	if units.Sign() == 0 {
		return nil, &Skip{StockID: c.StockID, Symbol: c.Symbol, Reason: SkipZeroAllocation}, nil
	}
	if balance.Cmp(units) < 0 {
		return nil, &Skip{
			StockID: c.StockID, Symbol: c.Symbol, Reason: SkipInsufficientBalance,
			Detail: fmt.Sprintf("balance %s < %s", balance, units),
		}, nil
	}

	reduction, err := readUint8(ctx, e.chain, contracts.ProcessorCall(e.cfg.OrderProcessor, contracts.MethodOrderDecimalReduction, el.Token))
	if err != nil {
		return nil, nil, err
	}
	truncated, err := truncateToPrecision(units, decimals, reduction)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", c.Symbol, err)
	}
	return &sellLine{
		line:     AllocationLine{Constituent: c, Token: el.Token, Amount: truncated, Side: SideSell},
		units:    truncated,
		decimals: decimals,
	}, nil, nil
}

// truncateToPrecision floors units to a multiple of 10^reduction, the
// precision the order processor accepts for the token.
func truncateToPrecision(units *big.Int, decimals, reduction uint8) (*big.Int, error) {
	if reduction > decimals {
		return nil, fmt.Errorf("%w: decimal reduction %d exceeds token decimals %d", ErrPrecisionExceeded, reduction, decimals)
	}
	step := pow10(reduction)
	out := new(big.Int).Quo(units, step)
	out.Mul(out, step)
	if out.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s below minimum increment %s", ErrPrecisionExceeded, units, step)
	}
	return out, nil
}

// execute encodes, submits and extracts a signed batch. release frees the
// nonce locks once the receipt is in.
func (e *Executor) execute(ctx context.Context, b *batch, release func()) (*Result, error) {
	log := e.logger()
	owner := b.wallet.Address()
	now := e.clock().Now()

	data, err := EncodeBatch(b.permits, b.orders, owner, e.cfg.PaymentToken, uint64(now.UnixMilli()))
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	log.Infow("execution_submitting", "execution", id, "side", b.side, "wallet", owner.Hex(),
		"orders", len(b.orders), "permits", len(b.permits))

	receipt, err := submitBatch(ctx, b.wallet, e.cfg.OrderProcessor, data)
	release()
	if err != nil {
		log.Warnw("execution_submit_failed", "execution", id, "side", b.side, "err", err)
		return nil, err
	}

	ids, err := ExtractOrderIDs(receipt, e.cfg.OrderProcessor, len(b.orders))
	if err != nil {
		var ire *InconsistentReceiptError
		if errors.As(err, &ire) {
			e.journal(JournalEntry{
				Kind: JournalInconsistentReceipt, ExecutionID: id, Side: b.side, Wallet: owner.Hex(),
				TxHash: receipt.TxHash.Hex(), Expected: ire.Expected, Got: ire.Got, Time: e.clock().Now(),
			})
		}
		log.Errorw("execution_inconsistent_receipt", "execution", id, "tx", receipt.TxHash.Hex(), "err", err)
		return nil, err
	}

	res := &Result{
		ID:              id,
		Side:            b.side,
		Wallet:          owner,
		AccountID:       b.accountID,
		CrateID:         b.crateID,
		TxHash:          receipt.TxHash,
		ChainID:         e.chain.ChainID(),
		Skipped:         b.skipped,
		Remainder:       b.remainder,
		TotalAmount:     b.total,
		TotalSpent:      b.spent,
		TotalFees:       b.fees,
		PaymentDecimals: e.cfg.PaymentDecimals,
		CreatedAt:       now,
		Warnings:        b.warnings,
	}
	idStrings := make([]string, len(ids))
	for i, o := range b.orders {
		res.Orders = append(res.Orders, SubmittedOrder{
			OrderID:         ids[i],
			StockID:         o.Line.Constituent.StockID,
			Symbol:          o.Line.Constituent.Symbol,
			AssetToken:      o.Line.Token,
			PaymentQuantity: o.PaymentQuantity,
			AssetQuantity:   o.AssetQuantity,
			Fee:             o.Quote.Fee,
			Shares:          o.Shares,
			Estimate:        o.Estimate,
		})
		idStrings[i] = ids[i].String()
	}
	e.journal(JournalEntry{
		Kind: JournalSubmitted, ExecutionID: id, Side: b.side, Wallet: owner.Hex(), TxHash: receipt.TxHash.Hex(),
		Expected: len(b.orders), Got: len(ids), OrderIDs: idStrings, Time: e.clock().Now(),
	})
	if e.Observer != nil {
		e.Observer.OrdersSubmitted(string(b.side), len(res.Orders))
		for _, s := range res.Skipped {
			e.Observer.ConstituentSkipped(string(s.Reason))
		}
	}
	log.Infow("execution_submitted", "execution", id, "side", b.side, "tx", receipt.TxHash.Hex(),
		"orders", len(ids), "skipped", len(b.skipped), "spent", b.spent.String(), "fees", b.fees.String())

	if e.Recorder != nil {
		// On-chain effects already happened; recording must outlive a cancelled request.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := e.Recorder.RecordExecution(rctx, Record{Result: *res}); err != nil {
			log.Warnw("execution_record_failed", "execution", id, "err", err)
			res.Warnings = append(res.Warnings, "execution was not recorded: "+err.Error())
		}
	}
	return res, nil
}

func (e *Executor) deadline(blockTime uint64) *big.Int {
	return new(big.Int).SetUint64(blockTime + uint64(e.cfg.PermitWindow/time.Second))
}

func (e *Executor) journal(entry JournalEntry) {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.Append(entry); err != nil {
		e.logger().Errorw("journal_append_failed", "execution", entry.ExecutionID, "kind", entry.Kind, "err", err)
	}
}

func (e *Executor) finished(side Side, start time.Time, err error) {
	if e.Observer != nil {
		e.Observer.ExecutionFinished(string(side), ErrorKind(err), e.clock().Now().Sub(start))
	}
}

func (e *Executor) clock() util.Clock {
	if e.Clock == nil {
		return util.RealClock{}
	}
	return e.Clock
}

func (e *Executor) logger() *zap.SugaredLogger { return util.OrNop(e.Logger) }

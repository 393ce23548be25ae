package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/cratex/pkg/contracts"
	"github.com/uhyunpark/cratex/pkg/util"
)

type OrderStatus string

const (
	StatusPending OrderStatus = "pending"
	StatusFilled  OrderStatus = "filled"
	StatusFailed  OrderStatus = "failed"
)

// StatusFromCode maps getOrderStatus: 1 pending, 2 filled, anything else failed.
func StatusFromCode(code uint8) OrderStatus {
	switch code {
	case contracts.StatusActive:
		return StatusPending
	case contracts.StatusFulfilled:
		return StatusFilled
	default:
		return StatusFailed
	}
}

func (s OrderStatus) Terminal() bool { return s != StatusPending }

type BatchState string

const (
	StateWaiting         BatchState = "waiting"
	StateAllFilled       BatchState = "all_filled"
	StatePartiallyFailed BatchState = "partially_failed"
	// StateEmpty is a snapshot with no orders in it.
	StateEmpty BatchState = "empty"
)

// ErrNoOrders is returned when tracking is asked to follow no order ids.
var ErrNoOrders = errors.New("no orders to track")

type OrderState struct {
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
	Code    uint8       `json:"code"`
}

// Snapshot is the aggregate status of one batch.
type Snapshot struct {
	ExecutionID      string       `json:"executionId"`
	Orders           []OrderState `json:"orders"`
	CompletedCount   int          `json:"completedCount"`
	TerminalCount    int          `json:"terminalCount"`
	Total            int          `json:"total"`
	PercentCompleted float64      `json:"percentCompleted"`
	State            BatchState   `json:"state"`
	Polls            int          `json:"polls"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Completed reports whether every order reached a terminal state.
func (s Snapshot) Completed() bool {
	return s.State == StateAllFilled || s.State == StatePartiallyFailed
}

func newSnapshot(executionID string, ids []*big.Int) Snapshot {
	snap := Snapshot{ExecutionID: executionID, Orders: make([]OrderState, len(ids)), Total: len(ids)}
	for i, id := range ids {
		snap.Orders[i] = OrderState{OrderID: id.String(), Status: StatusPending, Code: contracts.StatusActive}
	}
	snap.aggregate()
	return snap
}

func (s *Snapshot) aggregate() {
	s.CompletedCount, s.TerminalCount = 0, 0
	failed := false
	for _, o := range s.Orders {
		if o.Status == StatusFilled {
			s.CompletedCount++
		}
		if o.Status.Terminal() {
			s.TerminalCount++
		}
		if o.Status == StatusFailed {
			failed = true
		}
	}
	if s.Total > 0 {
		s.PercentCompleted = float64(s.CompletedCount) / float64(s.Total) * 100
	}
	switch {
	case s.Total == 0:
		s.State = StateEmpty
	case s.TerminalCount < s.Total:
		s.State = StateWaiting
	case failed:
		s.State = StatePartiallyFailed
	default:
		s.State = StateAllFilled
	}
}

func (s Snapshot) clone() Snapshot {
	s.Orders = append([]OrderState(nil), s.Orders...)
	return s
}

// Tracker polls getOrderStatus until every order of a batch is terminal.
type Tracker struct {
	Chain     ChainReader
	Processor common.Address
	Interval  time.Duration
	MaxPolls  int

	Clock    util.Clock
	Logger   *zap.SugaredLogger
	Sink     StatusSink
	Observer Observer
	// OnUpdate is called after every snapshot that changed an order.
	OnUpdate func(snap Snapshot)
}

func NewTracker(chain ChainReader, processor common.Address, interval time.Duration, maxPolls int) *Tracker {
	return &Tracker{Chain: chain, Processor: processor, Interval: interval, MaxPolls: maxPolls}
}

// Poll reads every non-terminal order of snap once and returns the updated
// snapshot and whether anything changed. Read failures leave the order pending.
func (t *Tracker) Poll(ctx context.Context, snap Snapshot) (Snapshot, bool) {
	next := snap.clone()
	changed := false
	for i, o := range next.Orders {
		if o.Status.Terminal() {
			continue
		}
		id, ok := new(big.Int).SetString(o.OrderID, 10)
		if !ok {
			continue
		}
		code, err := readUint8(ctx, t.Chain, contracts.ProcessorCall(t.Processor, contracts.MethodGetOrderStatus, id))
		if err != nil {
			util.OrNop(t.Logger).Warnw("order_status_read_failed", "execution", snap.ExecutionID, "order", o.OrderID, "err", err)
			continue
		}
		status := StatusFromCode(code)
		if status != o.Status {
			next.Orders[i] = OrderState{OrderID: o.OrderID, Status: status, Code: code}
			changed = true
			if t.Observer != nil {
				t.Observer.OrderStatusObserved(string(status))
			}
		}
	}
	next.Polls++
	next.UpdatedAt = t.clock().Now()
	next.aggregate()
	return next, changed
}

// Status is a one-shot read of ids outside any tracked execution. An empty
// id set reads nothing and reports StateEmpty.
func (t *Tracker) Status(ctx context.Context, ids []*big.Int) Snapshot {
	if len(ids) == 0 {
		return newSnapshot("", nil)
	}
	snap, _ := t.Poll(ctx, newSnapshot("", ids))
	return snap
}

// Track starts polling in the background. The returned handle must be
// cancelled or waited on.
func (t *Tracker) Track(ctx context.Context, executionID string, ids []*big.Int) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		updates: make(chan Snapshot, 8),
		done:    make(chan struct{}),
		cancel:  cancel,
		last:    newSnapshot(executionID, ids),
	}
	if len(ids) == 0 {
		cancel()
		h.finish(h.last, ErrNoOrders)
		return h
	}
	go t.run(ctx, h)
	return h
}

func (t *Tracker) run(ctx context.Context, h *Handle) {
	defer h.cancel()
	log := util.OrNop(t.Logger)
	snap := h.Snapshot()

	for {
		next, changed := t.Poll(ctx, snap)
		snap = next
		if changed {
			t.publish(ctx, snap)
		}
		h.push(snap)

		if snap.Completed() {
			log.Infow("execution_orders_completed", "execution", snap.ExecutionID, "state", snap.State,
				"filled", snap.CompletedCount, "total", snap.Total, "polls", snap.Polls)
			h.finish(snap, nil)
			return
		}
		if t.MaxPolls > 0 && snap.Polls >= t.MaxPolls {
			log.Warnw("order_status_timeout", "execution", snap.ExecutionID, "polls", snap.Polls,
				"terminal", snap.TerminalCount, "total", snap.Total)
			h.finish(snap, &StatusTimeoutError{Polls: snap.Polls, Last: snap.clone()})
			return
		}
		if err := util.Sleep(ctx, t.clock(), t.Interval); err != nil {
			h.finish(snap, err)
			return
		}
	}
}

func (t *Tracker) publish(ctx context.Context, snap Snapshot) {
	if t.Sink != nil && snap.ExecutionID != "" {
		if err := t.Sink.UpdateOrderStatuses(ctx, snap.clone()); err != nil {
			util.OrNop(t.Logger).Warnw("order_status_persist_failed", "execution", snap.ExecutionID, "err", err)
		}
	}
	if t.OnUpdate != nil {
		t.OnUpdate(snap.clone())
	}
}

func (t *Tracker) clock() util.Clock {
	if t.Clock == nil {
		return util.RealClock{}
	}
	return t.Clock
}

// Handle controls one background tracking task.
type Handle struct {
	updates chan Snapshot
	done    chan struct{}
	cancel  context.CancelFunc

	mu   sync.Mutex
	last Snapshot
	err  error
}

// Updates yields every polled snapshot. Slow readers see the latest ones;
// the channel is closed when tracking ends.
func (h *Handle) Updates() <-chan Snapshot { return h.updates }

// Done is closed when tracking ends.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops polling. Already terminal orders stay terminal.
func (h *Handle) Cancel() { h.cancel() }

func (h *Handle) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last.clone()
}

// Wait blocks until tracking ends or ctx is done. The error is nil when
// every order is terminal, a *StatusTimeoutError when the poll limit was
// hit, or the cancellation cause.
func (h *Handle) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.last.clone(), h.err
	case <-ctx.Done():
		return h.Snapshot(), ctx.Err()
	}
}

// push is only called from the polling goroutine. When the buffer is full
// the oldest snapshot is dropped.
func (h *Handle) push(snap Snapshot) {
	h.mu.Lock()
	h.last = snap.clone()
	h.mu.Unlock()
	for {
		select {
		case h.updates <- snap.clone():
			return
		default:
			select {
			case <-h.updates:
			default:
			}
		}
	}
}

func (h *Handle) finish(snap Snapshot, err error) {
	h.mu.Lock()
	h.last = snap.clone()
	h.err = err
	h.mu.Unlock()
	close(h.updates)
	close(h.done)
}

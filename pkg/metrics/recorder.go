package metrics

import (
	"time"

	"github.com/uhyunpark/cratex/pkg/engine"
)

// Recorder feeds engine events into the package collectors.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ExecutionFinished(side, outcome string, elapsed time.Duration) {
	ExecutionsTotal.WithLabelValues(side, outcome).Inc()
	ExecutionDuration.WithLabelValues(side).Observe(elapsed.Seconds())
}

func (r *Recorder) OrdersSubmitted(side string, n int) {
	OrdersSubmittedTotal.WithLabelValues(side).Add(float64(n))
}

func (r *Recorder) QuoteFailed() {
	FeeQuoteFailuresTotal.Inc()
}

func (r *Recorder) ConstituentSkipped(reason string) {
	SkippedConstituentsTotal.WithLabelValues(reason).Inc()
}

func (r *Recorder) OrderStatusObserved(status string) {
	OrderStatusTotal.WithLabelValues(status).Inc()
}

var _ engine.Observer = (*Recorder)(nil)

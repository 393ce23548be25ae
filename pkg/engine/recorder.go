package engine

import (
	"context"
	"errors"
	"fmt"
)

// MultiRecorder fans a record out to every recorder and joins their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) RecordExecution(ctx context.Context, rec Record) error {
	var errs []error
	for i, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordExecution(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("recorder %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// MultiSink fans tracker snapshots out to every sink.
type MultiSink []StatusSink

func (m MultiSink) UpdateOrderStatuses(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.UpdateOrderStatuses(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

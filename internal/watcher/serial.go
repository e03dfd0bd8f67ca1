package watcher

import (
	"context"
	"sync/atomic"
)

// SerialTrigger runs a function in response to triggers, one run at a time.
//
// Triggers never interrupt a run in progress. Every trigger arriving while a
// run is in flight collapses into a single follow-up run, so a burst of N
// triggers during one build causes exactly one more build.
type SerialTrigger struct {
	run     func(ctx context.Context) error
	onError func(err error)
	pending chan struct{}
	runs    atomic.Int64
}

// NewSerialTrigger creates a trigger around run. onError receives every
// failure of run and may be nil.
func NewSerialTrigger(run func(ctx context.Context) error, onError func(err error)) *SerialTrigger {
	return &SerialTrigger{
		run:     run,
		onError: onError,
		pending: make(chan struct{}, 1),
	}
}

// Trigger requests a run. It never blocks.
func (s *SerialTrigger) Trigger() {
	select {
	case s.pending <- struct{}{}:
	default:
		// A run is already queued.
	}
}

// Runs returns how many runs have completed.
func (s *SerialTrigger) Runs() int64 {
	return s.runs.Load()
}

// Start processes triggers until ctx is done. A run in progress when ctx is
// cancelled observes the cancellation through its context.
func (s *SerialTrigger) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pending:
			if err := s.run(ctx); err != nil && s.onError != nil && ctx.Err() == nil {
				s.onError(err)
			}
			s.runs.Add(1)
		}
	}
}

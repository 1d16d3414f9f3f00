// Package dispatcher sends labeled items to a transport in bounded batches
// and reassembles per-item outcomes into a complete report.
//
// One transport call is made per batch, up to MaxConcurrentBatches in
// flight. A batch failing wholesale never aborts the dispatch: its items
// are marked failed and the remaining batches proceed. The returned Report
// always covers every submitted item, in input order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"docgofer/internal/batcher"
)

// Dispatcher partitions items and drives transport calls per batch
type Dispatcher struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a Dispatcher, validating and defaulting options
func New(opts Options, logger zerolog.Logger) (*Dispatcher, error) {
	if opts.MaxBatchSize == 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if opts.MaxBatchSize < 0 {
		return nil, fmt.Errorf("%w: maxBatchSize must be positive, got %d", batcher.ErrInvalidConfig, opts.MaxBatchSize)
	}
	if opts.MaxBatchPayload < 0 {
		return nil, fmt.Errorf("%w: maxBatchPayload must be non-negative, got %d", batcher.ErrInvalidConfig, opts.MaxBatchPayload)
	}
	if opts.MaxConcurrentBatches == 0 {
		opts.MaxConcurrentBatches = DefaultMaxConcurrentBatches
	}
	if opts.MaxConcurrentBatches < 0 {
		return nil, fmt.Errorf("%w: maxConcurrentBatches must be positive, got %d", batcher.ErrInvalidConfig, opts.MaxConcurrentBatches)
	}
	if opts.PerBatchTimeout < 0 {
		return nil, fmt.Errorf("%w: perBatchTimeout must be non-negative", batcher.ErrInvalidConfig)
	}

	return &Dispatcher{
		opts:   opts,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

// Dispatch sends items through transport in batches and returns a Report
// holding one result per item, in input order. Only configuration and input
// validation errors abort the call; every transport-level failure is
// captured into the per-item results instead.
func (d *Dispatcher) Dispatch(ctx context.Context, items []batcher.Item, transport Transport) (*Report, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", batcher.ErrInvalidConfig)
	}

	slots, err := indexItems(items)
	if err != nil {
		return nil, err
	}

	maxPayload := d.opts.MaxBatchPayload
	if maxPayload == 0 {
		maxPayload = math.MaxInt
	}

	batches, err := batcher.Partition(items, d.opts.MaxBatchSize, maxPayload)
	if err != nil {
		return nil, err
	}

	// One write-once slot per input item; each index is written by exactly
	// one batch's outcome, so concurrent batches never race.
	results := make([]ItemResult, len(items))
	var failedBatches int64

	sem := semaphore.NewWeighted(int64(d.opts.MaxConcurrentBatches))
	var wg sync.WaitGroup

	for i := range batches {
		b := &batches[i]

		if b.Oversized {
			item := b.Items[0]
			results[slots[item.ID]] = ItemResult{
				ID:      item.ID,
				Kind:    KindTooLarge,
				Message: fmt.Sprintf("item size %d exceeds batch payload limit %d", item.SizeHint, d.opts.MaxBatchPayload),
			}
			atomic.AddInt64(&failedBatches, 1)
			d.logger.Warn().
				Str("id", item.ID).
				Int("size", item.SizeHint).
				Int("limit", d.opts.MaxBatchPayload).
				Msg("item too large, skipping transport")
			continue
		}

		// Acquire may succeed on a done context, so check cancellation first
		if ctx.Err() != nil {
			d.failBatch(results, slots, b, KindCancelled, "dispatch cancelled before batch started")
			atomic.AddInt64(&failedBatches, 1)
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// Dispatch cancelled while waiting for a slot; this batch never started
			d.failBatch(results, slots, b, KindCancelled, "dispatch cancelled before batch started")
			atomic.AddInt64(&failedBatches, 1)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if d.runBatch(ctx, b, transport, results, slots) {
				atomic.AddInt64(&failedBatches, 1)
			}
		}()
	}

	wg.Wait()

	report := &Report{
		Results:          results,
		BatchCount:       len(batches),
		FailedBatchCount: int(atomic.LoadInt64(&failedBatches)),
	}

	d.logger.Debug().
		Int("items", len(items)).
		Int("batches", report.BatchCount).
		Int("failedBatches", report.FailedBatchCount).
		Int("failedItems", report.FailureCount()).
		Msg("dispatch completed")

	return report, nil
}

// runBatch executes the transport for one batch and fills its result slots.
// Returns true if the batch failed wholesale.
func (d *Dispatcher) runBatch(ctx context.Context, b *batcher.Batch, transport Transport, results []ItemResult, slots map[string]int) bool {
	bctx := ctx
	if d.opts.PerBatchTimeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, d.opts.PerBatchTimeout)
		defer cancel()
	}

	entries, err := transport(bctx, b)
	if err != nil {
		kind := KindTransport
		switch {
		case ctx.Err() != nil:
			kind = KindCancelled
		case errors.Is(bctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
			kind = KindTimeout
		}

		d.failBatch(results, slots, b, kind, err.Error())
		d.logger.Warn().
			Err(err).
			Int("items", len(b.Items)).
			Str("kind", string(kind)).
			Msg("batch failed wholesale")
		return true
	}

	// Correlate per-item outcomes back to the batch's items by ID. A
	// response ID outside this batch means a misbehaving transport.
	matched := make(map[string]bool, len(b.Items))
	for _, item := range b.Items {
		matched[item.ID] = false
	}

	for _, entry := range entries {
		seen, inBatch := matched[entry.ID]
		if !inBatch {
			d.logger.Warn().
				Str("id", entry.ID).
				Msg("response id does not belong to batch, ignoring")
			continue
		}
		if seen {
			d.logger.Warn().
				Str("id", entry.ID).
				Msg("duplicate response id, keeping first outcome")
			continue
		}
		matched[entry.ID] = true

		idx := slots[entry.ID]
		if entry.Err != nil {
			results[idx] = ItemResult{ID: entry.ID, Kind: KindRemote, Message: entry.Err.Error()}
		} else {
			results[idx] = ItemResult{ID: entry.ID, Value: entry.Value}
		}
	}

	for _, item := range b.Items {
		if !matched[item.ID] {
			results[slots[item.ID]] = ItemResult{
				ID:      item.ID,
				Kind:    KindCorrelation,
				Message: "transport returned no outcome for item",
			}
			d.logger.Warn().
				Str("id", item.ID).
				Msg("no outcome for item in batch response")
		}
	}

	return false
}

// failBatch marks every item of a batch with the same failure
func (d *Dispatcher) failBatch(results []ItemResult, slots map[string]int, b *batcher.Batch, kind ErrorKind, message string) {
	for _, item := range b.Items {
		results[slots[item.ID]] = ItemResult{ID: item.ID, Kind: kind, Message: message}
	}
}

// indexItems maps item IDs to their input position, rejecting duplicates
func indexItems(items []batcher.Item) (map[string]int, error) {
	slots := make(map[string]int, len(items))
	for i, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("%w: item at position %d has empty id", batcher.ErrInvalidConfig, i)
		}
		if _, exists := slots[item.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate item id %q", batcher.ErrInvalidConfig, item.ID)
		}
		slots[item.ID] = i
	}
	return slots, nil
}

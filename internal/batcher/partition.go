// Package batcher partitions labeled request items into bounded batches.
//
// Packing is greedy and stable: items stay in input order, the next item is
// appended to the current batch unless doing so would exceed the batch item
// count or total payload limit. Items too large to ever fit are isolated
// into single-item batches marked Oversized.
package batcher

import "fmt"

// Partition splits items into batches of at most maxCount items and at most
// maxPayload total SizeHint each. Input order is preserved across and within
// batches. An empty input yields an empty slice.
func Partition(items []Item, maxCount int, maxPayload int) ([]Batch, error) {
	if maxCount <= 0 {
		return nil, fmt.Errorf("%w: maxCount must be positive, got %d", ErrInvalidConfig, maxCount)
	}
	if maxPayload <= 0 {
		return nil, fmt.Errorf("%w: maxPayload must be positive, got %d", ErrInvalidConfig, maxPayload)
	}

	if len(items) == 0 {
		return []Batch{}, nil
	}

	batches := make([]Batch, 0, (len(items)+maxCount-1)/maxCount)
	var current []Item
	currentSize := 0

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, Batch{Items: current})
			current = nil
			currentSize = 0
		}
	}

	for _, item := range items {
		if item.SizeHint > maxPayload {
			// Can never fit; isolate so the rest of the input still dispatches
			flush()
			batches = append(batches, Batch{Items: []Item{item}, Oversized: true})
			continue
		}

		if len(current) >= maxCount || currentSize+item.SizeHint > maxPayload {
			flush()
		}

		current = append(current, item)
		currentSize += item.SizeHint
	}
	flush()

	return batches, nil
}

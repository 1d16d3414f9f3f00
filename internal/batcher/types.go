package batcher

import "errors"

// ErrInvalidConfig is returned when batching limits are not positive
var ErrInvalidConfig = errors.New("invalid batching config")

// Item is a single labeled request item.
// ID must be unique within one partition call. Payload is opaque to the
// batcher; SizeHint is the payload size used for packing (e.g. character count).
type Item struct {
	ID       string
	Payload  interface{}
	SizeHint int
}

// Batch is an ordered, non-empty group of items sent together in one
// transport call. An oversized batch holds exactly one item whose SizeHint
// alone exceeds the payload limit; the dispatcher fails it without
// attempting transport.
type Batch struct {
	Items     []Item
	Oversized bool
}

// Size returns the total SizeHint of all items in the batch
func (b *Batch) Size() int {
	total := 0
	for _, item := range b.Items {
		total += item.SizeHint
	}
	return total
}

// IDs returns the item IDs in batch order
func (b *Batch) IDs() []string {
	ids := make([]string, len(b.Items))
	for i, item := range b.Items {
		ids[i] = item.ID
	}
	return ids
}

package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"docgofer/internal/batcher"
)

// ErrorKind classifies a per-item failure in a Report
type ErrorKind string

const (
	// KindTooLarge: the item alone exceeds the batch payload limit; transport was never attempted
	KindTooLarge ErrorKind = "tooLarge"
	// KindTransport: the whole batch failed at the transport level
	KindTransport ErrorKind = "transportError"
	// KindRemote: the service rejected this item while the rest of the batch succeeded
	KindRemote ErrorKind = "remoteError"
	// KindCorrelation: the transport response could not be matched back to this item
	KindCorrelation ErrorKind = "correlationError"
	// KindTimeout: the batch exceeded its per-batch timeout budget
	KindTimeout ErrorKind = "timeout"
	// KindCancelled: the dispatch was cancelled before or during this batch
	KindCancelled ErrorKind = "cancelled"
)

// ItemResult is the outcome for one submitted item.
// Kind is empty on success, in which case Value holds the result payload.
type ItemResult struct {
	ID      string          `json:"id"`
	Value   json.RawMessage `json:"value,omitempty"`
	Kind    ErrorKind       `json:"errorKind,omitempty"`
	Message string          `json:"errorMessage,omitempty"`
}

// Ok returns true if the item succeeded
func (r ItemResult) Ok() bool {
	return r.Kind == ""
}

// ResponseItem is one per-item outcome returned by a Transport.
// Exactly one of Value and Err is set.
type ResponseItem struct {
	ID    string
	Value json.RawMessage
	Err   error
}

// Transport performs the remote call for one batch. It may fail wholesale
// by returning an error, or report per-item outcomes where individual items
// carry errors. Retry policy, if any, belongs inside the transport; the
// dispatcher never retries.
type Transport func(ctx context.Context, batch *batcher.Batch) ([]ResponseItem, error)

// Report is the complete result of one Dispatch call. Results holds exactly
// one entry per submitted item, in input order.
type Report struct {
	Results          []ItemResult `json:"results"`
	BatchCount       int          `json:"batchCount"`
	FailedBatchCount int          `json:"failedBatchCount"`
}

// SuccessCount returns the number of successful items
func (r *Report) SuccessCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Ok() {
			n++
		}
	}
	return n
}

// FailureCount returns the number of failed items
func (r *Report) FailureCount() int {
	return len(r.Results) - r.SuccessCount()
}

// Options configures a Dispatcher
type Options struct {
	// MaxBatchSize is the maximum number of items per batch
	MaxBatchSize int
	// MaxBatchPayload is the maximum total SizeHint per batch; 0 means unbounded
	MaxBatchPayload int
	// MaxConcurrentBatches limits in-flight transport calls; 0 means sequential
	MaxConcurrentBatches int
	// PerBatchTimeout is the transport budget per batch; 0 means none
	PerBatchTimeout time.Duration
}

// Default option values
const (
	DefaultMaxBatchSize         = 5
	DefaultMaxConcurrentBatches = 1
)

package endpoint

import (
	"context"
	"fmt"

	"docgofer/internal/analysis"
	"docgofer/internal/batcher"
	"docgofer/internal/dispatcher"
)

// Transport adapts the executor into a dispatcher.Transport for one
// analysis operation. Batch item payloads must be analysis.Document values.
func (ex *Executor) Transport(op string) dispatcher.Transport {
	return func(ctx context.Context, b *batcher.Batch) ([]dispatcher.ResponseItem, error) {
		docs := make([]analysis.Document, 0, len(b.Items))
		for _, item := range b.Items {
			doc, ok := item.Payload.(analysis.Document)
			if !ok {
				return nil, fmt.Errorf("item %s: payload is not an analysis document", item.ID)
			}
			docs = append(docs, doc)
		}

		resp, err := ex.Execute(ctx, op, analysis.NewBatchRequest(docs))
		if err != nil {
			return nil, err
		}

		entries, err := resp.Entries()
		if err != nil {
			return nil, fmt.Errorf("malformed batch response: %w", err)
		}

		out := make([]dispatcher.ResponseItem, 0, len(entries))
		for _, entry := range entries {
			if entry.Err != nil {
				out = append(out, dispatcher.ResponseItem{ID: entry.ID, Err: entry.Err})
			} else {
				out = append(out, dispatcher.ResponseItem{ID: entry.ID, Value: entry.Result})
			}
		}
		return out, nil
	}
}

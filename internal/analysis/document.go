package analysis

import (
	"encoding/json"
	"fmt"
)

// API version path segment for the analysis service
const APIVersion = "v3.1"

// Supported analysis operations
const (
	OpSentiment   = "sentiment"
	OpKeyPhrases  = "keyPhrases"
	OpEntities    = "entities/recognition/general"
	OpPIIEntities = "entities/recognition/pii"
	OpLanguages   = "languages"
)

// KnownOperations lists the operations the service accepts
var KnownOperations = []string{
	OpSentiment,
	OpKeyPhrases,
	OpEntities,
	OpPIIEntities,
	OpLanguages,
}

// IsKnownOperation returns true if op is a supported operation path
func IsKnownOperation(op string) bool {
	for _, known := range KnownOperations {
		if op == known {
			return true
		}
	}
	return false
}

// Document is a single input document for an analysis operation.
// ID must be unique within a batch request.
type Document struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Size returns the document payload size in bytes, used for batch packing
func (d Document) Size() int {
	return len(d.Text)
}

// Validate checks that the document can be submitted
func (d Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if d.Text == "" {
		return fmt.Errorf("document %s: text is required", d.ID)
	}
	return nil
}

// BatchRequest is the request body for one analysis call
type BatchRequest struct {
	Documents []Document `json:"documents"`
}

// NewBatchRequest creates a request from documents
func NewBatchRequest(docs []Document) *BatchRequest {
	return &BatchRequest{Documents: docs}
}

// Bytes returns the request as JSON bytes
func (r *BatchRequest) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

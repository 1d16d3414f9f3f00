package analysis

import (
	"encoding/json"
	"fmt"
)

// Error is a per-document error as reported by the analysis service
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// DocumentError pairs a document ID with its service-side error
type DocumentError struct {
	ID    string `json:"id"`
	Error *Error `json:"error"`
}

// BatchResponse is the response body for one analysis call.
// Successfully analyzed documents land in Documents, rejected ones in Errors.
type BatchResponse struct {
	Documents    []json.RawMessage `json:"documents"`
	Errors       []DocumentError   `json:"errors,omitempty"`
	ModelVersion string            `json:"modelVersion,omitempty"`
}

// ResponseEntry is one per-document outcome extracted from a BatchResponse.
// Exactly one of Result and Err is set.
type ResponseEntry struct {
	ID     string
	Result json.RawMessage
	Err    *Error
}

// documentID is the minimal shape needed to read a result document's ID
type documentID struct {
	ID string `json:"id"`
}

// Entries flattens the response into per-document outcomes, successful
// documents first in service order, then errored documents.
func (r *BatchResponse) Entries() ([]ResponseEntry, error) {
	entries := make([]ResponseEntry, 0, len(r.Documents)+len(r.Errors))

	for _, raw := range r.Documents {
		var doc documentID
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to read result document id: %w", err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("result document has no id")
		}
		entries = append(entries, ResponseEntry{ID: doc.ID, Result: raw})
	}

	for _, docErr := range r.Errors {
		e := docErr.Error
		if e == nil {
			e = &Error{Code: "UnknownError", Message: "service reported an error without details"}
		}
		entries = append(entries, ResponseEntry{ID: docErr.ID, Err: e})
	}

	return entries, nil
}

// ParseBatchResponse parses an analysis response from bytes
func ParseBatchResponse(data []byte) (*BatchResponse, error) {
	var resp BatchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// Bytes returns the response as JSON bytes
func (r *BatchResponse) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

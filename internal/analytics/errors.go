// Package analytics implements the message processing pipeline:
// normalization, sentiment analysis, relationship building, pattern
// detection, alerting, and insight generation.
package analytics

import "errors"

var (
	// ErrMalformedPayload indicates a webhook payload missing required
	// identity fields. Such payloads are acknowledged and dropped.
	ErrMalformedPayload = errors.New("malformed message payload")

	// ErrPersistence indicates a storage failure while recording a
	// message or derived analytics.
	ErrPersistence = errors.New("persistence failure")

	// ErrAnalysisSkipped indicates a message was intentionally not
	// analyzed (too short, or media without text).
	ErrAnalysisSkipped = errors.New("analysis skipped")
)

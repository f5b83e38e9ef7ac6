package domain

import "errors"

// Error taxonomy shared by the ingestion pipeline. Wrap with fmt.Errorf("%w")
// and match with errors.Is.
var (
	ErrFetchFailed                  = errors.New("fetch failed")
	ErrInsufficientText             = errors.New("insufficient text extracted")
	ErrExtractionFailed             = errors.New("text extraction failed")
	ErrExtractionServiceUnavailable = errors.New("extraction service unavailable")
	ErrMalformedExtractionResponse  = errors.New("malformed extraction response")
	ErrValidationFailed             = errors.New("validation failed")
	ErrStoreWriteFailed             = errors.New("store write failed")
	ErrNotFound                     = errors.New("not found")
)

// MinTextLength is the shortest extracted text accepted for extraction.
const MinTextLength = 50

// Package ocr wraps an external text-recognition engine behind a small
// interface the ingestion pipeline can stub out.
package ocr

import (
	"context"
	"fmt"
)

// Word is one recognized token with the engine's confidence for it.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result is the recognized content of one image.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

// Progress receives fractional completion in [0,100]. Implementations call it
// with monotonically non-decreasing values; callers may pass nil.
type Progress func(percent int)

// Recognizer turns an image file into text. Implementations are safe for
// concurrent use; each call acquires and releases any engine session it needs.
type Recognizer interface {
	Recognize(ctx context.Context, path string, progress Progress) (Result, error)
}

// Failure is the recoverable per-page error class. The pipeline absorbs it:
// a failed page degrades to empty text and never aborts its batch.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("ocr: %s: %v", f.Reason, f.Err)
	}
	return "ocr: " + f.Reason
}

func (f *Failure) Unwrap() error { return f.Err }

func failure(reason string, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

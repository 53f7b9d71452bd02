// Package ocr defines the optical-character-recognition collaborator
// boundary. Recognition itself happens outside this module; extractors
// consume recognized text plus per-character confidence through Engine.
package ocr

import "context"

// Line is one recognized text line with its mean character confidence.
type Line struct {
	Text       string
	Confidence float64 // 0..1
}

// Result is the recognition output for one image.
type Result struct {
	Lines []Line
	// MeanConfidence is the character-level confidence across all lines.
	MeanConfidence float64
}

// Engine recognizes text in an image. Implementations may call external
// services; ctx bounds the call.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (*Result, error)
}

// Noop is the default engine when OCR is not configured. It recognizes
// nothing, which downstream surfaces as a no-rows extraction error.
type Noop struct{}

func (Noop) Recognize(context.Context, []byte) (*Result, error) {
	return &Result{}, nil
}

// Package llm defines the language-model field-validation collaborator.
// When configured, low-confidence extracted fields can be sent out for a
// second opinion; the default implementation does nothing.
package llm

import (
	"context"

	"github.com/ledgerlift/ingest/internal/canonical"
)

// Suggestion is one proposed field correction.
type Suggestion struct {
	Field      string // description, category, vendor
	Value      string
	Confidence float64
}

// FieldValidator reviews a low-confidence transaction and proposes
// corrections. Implementations may call external services; ctx bounds the
// call. An empty suggestion list means no changes.
type FieldValidator interface {
	ValidateFields(ctx context.Context, tx *canonical.Transaction) ([]Suggestion, error)
}

// Noop is the default validator: it never suggests anything.
type Noop struct{}

func (Noop) ValidateFields(context.Context, *canonical.Transaction) ([]Suggestion, error) {
	return nil, nil
}

// Package storage archives original statement files after ingestion so
// extractions can be replayed and audited. Files are keyed by content
// hash per tenant; storing the same bytes twice is a no-op.
package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo describes one archived statement file.
type FileInfo struct {
	SHA256      string    `json:"sha256"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // relative to the tenant directory
	StoredAt    time.Time `json:"stored_at"`
}

// Archive stores and retrieves original statement files.
type Archive interface {
	// Store writes a file under its content hash. The bool is true when
	// the same content was already archived for the tenant.
	Store(ctx context.Context, tenantID, filename, contentType string, data []byte) (*FileInfo, bool, error)

	// Open returns the archived bytes for a content hash.
	Open(ctx context.Context, tenantID, sha256Hex string) (io.ReadCloser, *FileInfo, error)

	// List returns every archived file for a tenant.
	List(ctx context.Context, tenantID string) ([]*FileInfo, error)

	// Delete removes an archived file and its metadata.
	Delete(ctx context.Context, tenantID, sha256Hex string) error
}

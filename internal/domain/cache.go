package domain

import (
	"context"

	"github.com/google/uuid"
)

// SnapshotCache defines the interface for caching document snapshots
type SnapshotCache interface {
	// Get retrieves a copy of a cached document
	Get(ctx context.Context, id uuid.UUID) (Document, bool)

	// Set stores a copy of the document
	Set(ctx context.Context, doc Document) error

	// Delete removes a document from the cache
	Delete(ctx context.Context, id uuid.UUID) error

	// CleanExpired removes all expired items from the cache
	CleanExpired(ctx context.Context) error

	// Clear drops every entry
	Clear()
}

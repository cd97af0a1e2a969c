package domain

import (
	"context"

	"github.com/google/uuid"
)

// DocumentStore defines the interface for document persistence
type DocumentStore interface {
	// Save inserts or replaces a document by ID
	Save(ctx context.Context, doc Document) error

	// GetByID retrieves a document by ID
	GetByID(ctx context.Context, id uuid.UUID) (Document, error)

	// FetchAll returns all documents sorted by CreatedAt descending
	FetchAll(ctx context.Context) ([]Document, error)

	// Delete deletes a document by ID
	Delete(ctx context.Context, id uuid.UUID) error

	// ClearAll deletes every document
	ClearAll(ctx context.Context) error
}

// SettingsStore persists user settings
type SettingsStore interface {
	// LoadSettings returns the stored settings and false when nothing was saved yet
	LoadSettings(ctx context.Context) (AppSettings, bool, error)

	// SaveSettings replaces the stored settings
	SaveSettings(ctx context.Context, settings AppSettings) error
}

// ModelRecordStore is the durable record of downloaded translation models
type ModelRecordStore interface {
	IsRecorded(ctx context.Context, code string) (bool, error)
	Record(ctx context.Context, code string) error
	Remove(ctx context.Context, code string) error
	List(ctx context.Context) ([]string, error)
}

// HealthChecker defines the interface for health checks
type HealthChecker interface {
	// CheckConnection checks if the database connection is healthy
	CheckConnection(ctx context.Context) error

	// EnsureCollections ensures that required collections/namespaces exist
	EnsureCollections(ctx context.Context) error
}

package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// MemoryRepository keeps documents, settings and model records in process memory.
// Values are cloned on the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]domain.Document
	settings  *domain.AppSettings
	models    map[string]struct{}
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		documents: make(map[uuid.UUID]domain.Document),
		models:    make(map[string]struct{}),
	}
}

// Save upserts a document by ID
func (r *MemoryRepository) Save(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("save", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents[doc.ID] = doc.Clone()
	return nil
}

// GetByID returns a copy of the stored document
func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, domain.NewStorageError("get", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.documents[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc.Clone(), nil
}

// FetchAll returns copies of all documents, newest first
func (r *MemoryRepository) FetchAll(ctx context.Context) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("fetch all", err)
	}
	r.mu.RLock()
	docs := make([]domain.Document, 0, len(r.documents))
	for _, doc := range r.documents {
		docs = append(docs, doc.Clone())
	}
	r.mu.RUnlock()

	sortNewestFirst(docs)
	return docs, nil
}

// Delete removes a document; deleting an unknown id is not an error
func (r *MemoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("delete", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.documents, id)
	return nil
}

// ClearAll removes every document
func (r *MemoryRepository) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("clear all", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = make(map[uuid.UUID]domain.Document)
	return nil
}

// LoadSettings returns the saved settings, if any
func (r *MemoryRepository) LoadSettings(ctx context.Context) (domain.AppSettings, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.settings == nil {
		return domain.AppSettings{}, false, nil
	}
	return *r.settings, true, nil
}

// SaveSettings stores settings
func (r *MemoryRepository) SaveSettings(ctx context.Context, settings domain.AppSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = &settings
	return nil
}

// IsRecorded reports whether the model code is recorded as downloaded
func (r *MemoryRepository) IsRecorded(ctx context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[code]
	return ok, nil
}

// Record marks the model code as downloaded
func (r *MemoryRepository) Record(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[code] = struct{}{}
	return nil
}

// Remove forgets the model code
func (r *MemoryRepository) Remove(ctx context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, code)
	return nil
}

// List returns recorded model codes in lexical order
func (r *MemoryRepository) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	codes := make([]string, 0, len(r.models))
	for code := range r.models {
		codes = append(codes, code)
	}
	r.mu.RUnlock()
	sort.Strings(codes)
	return codes, nil
}

// sortNewestFirst orders documents by CreatedAt DESC, ties broken by id for a stable listing
func sortNewestFirst(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID.String() < docs[j].ID.String()
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

var (
	_ domain.DocumentStore    = (*MemoryRepository)(nil)
	_ domain.SettingsStore    = (*MemoryRepository)(nil)
	_ domain.ModelRecordStore = (*MemoryRepository)(nil)
)

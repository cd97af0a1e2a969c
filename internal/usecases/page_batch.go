package usecases

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// PageBatch collects captured pages before they become a document.
// Page numbers stay 1-based and contiguous after removals.
type PageBatch struct {
	mu    sync.Mutex
	pages []domain.DocumentPage
}

// NewBatch creates an empty batch
func NewBatch() *PageBatch {
	return &PageBatch{}
}

// AddPage appends a page and returns it
func (b *PageBatch) AddPage(image []byte) domain.DocumentPage {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := domain.NewDocumentPage(append([]byte(nil), image...), len(b.pages)+1)
	b.pages = append(b.pages, page)
	return page.Clone()
}

// RemovePage drops a page and renumbers the rest
func (b *PageBatch) RemovePage(id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pages, ok := domain.RemovePage(b.pages, id)
	if !ok {
		return fmt.Errorf("page %s: %w", id, domain.ErrNotFound)
	}
	b.pages = pages
	return nil
}

// Pages returns copies of the collected pages in order
func (b *PageBatch) Pages() []domain.DocumentPage {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.DocumentPage, len(b.pages))
	for i, page := range b.pages {
		out[i] = page.Clone()
	}
	return out
}

// Images returns the page payloads in page order
func (b *PageBatch) Images() [][]byte {
	pages := b.Pages()
	images := make([][]byte, len(pages))
	for i, page := range pages {
		images[i] = page.ImageData
	}
	return images
}

// Len returns the number of pages
func (b *PageBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

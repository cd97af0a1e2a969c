package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AutoDetectCode is the pseudo language code meaning "detect the source language".
const AutoDetectCode = "auto"

// Language represents a language supported by the service
type Language struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	// IsDownloaded is a cached view of the model tracker, not a source of truth
	IsDownloaded bool `json:"is_downloaded"`
}

// IsAuto reports whether the language is the auto-detect pseudo language
func (l Language) IsAuto() bool {
	return l.Code == AutoDetectCode
}

// String returns the language code
func (l Language) String() string {
	return l.Code
}

// DocumentPage represents a single page image and the text produced from it
type DocumentPage struct {
	ID             uuid.UUID `json:"id"`
	ImageData      []byte    `json:"image_data"`
	PageNumber     int       `json:"page_number"`
	RecognizedText *string   `json:"recognized_text"`
	TranslatedText *string   `json:"translated_text"`
}

// NewDocumentPage creates an unprocessed page
func NewDocumentPage(imageData []byte, pageNumber int) DocumentPage {
	return DocumentPage{
		ID:         uuid.New(),
		ImageData:  imageData,
		PageNumber: pageNumber,
	}
}

// HasRecognizedText reports whether the recognition stage has set the page text
func (p DocumentPage) HasRecognizedText() bool {
	return p.RecognizedText != nil
}

// HasTranslatedText reports whether the translation stage has set the page text
func (p DocumentPage) HasTranslatedText() bool {
	return p.TranslatedText != nil
}

// WithRecognizedText returns a copy of the page with the recognized text set
func (p DocumentPage) WithRecognizedText(text string) DocumentPage {
	p.RecognizedText = &text
	return p
}

// WithTranslatedText returns a copy of the page with the translated text set
func (p DocumentPage) WithTranslatedText(text string) DocumentPage {
	p.TranslatedText = &text
	return p
}

// Clone returns a deep copy of the page
func (p DocumentPage) Clone() DocumentPage {
	out := p
	if p.ImageData != nil {
		out.ImageData = append([]byte(nil), p.ImageData...)
	}
	if p.RecognizedText != nil {
		text := *p.RecognizedText
		out.RecognizedText = &text
	}
	if p.TranslatedText != nil {
		text := *p.TranslatedText
		out.TranslatedText = &text
	}
	return out
}

// Document represents a multi-page document with its translation
type Document struct {
	ID             uuid.UUID        `json:"id"`
	Pages          []DocumentPage   `json:"pages"`
	SourceLanguage Language         `json:"source_language"`
	TargetLanguage Language         `json:"target_language"`
	CreatedAt      time.Time        `json:"created_at"`
	Status         ProcessingStatus `json:"status"`
}

// NewDocument creates a pending document owning the given pages
func NewDocument(pages []DocumentPage, source, target Language) Document {
	doc := Document{
		ID:             uuid.New(),
		SourceLanguage: source,
		TargetLanguage: target,
		CreatedAt:      time.Now().UTC(),
		Status:         StatusPending,
	}
	doc.Pages = make([]DocumentPage, len(pages))
	for i, page := range pages {
		doc.Pages[i] = page.Clone()
	}
	return doc
}

// Clone returns a deep copy so that the copy shares no memory with the original
func (d Document) Clone() Document {
	out := d
	if d.Pages != nil {
		out.Pages = make([]DocumentPage, len(d.Pages))
		for i, page := range d.Pages {
			out.Pages[i] = page.Clone()
		}
	}
	return out
}

// PageCount returns the number of pages
func (d Document) PageCount() int {
	return len(d.Pages)
}

// IsComplete reports whether processing finished successfully
func (d Document) IsComplete() bool {
	return d.Status == StatusCompleted
}

// IsFailed reports whether processing failed
func (d Document) IsFailed() bool {
	return d.Status == StatusFailed
}

// IsDisplayReady reports whether every page carries both texts and the document completed
func (d Document) IsDisplayReady() bool {
	if d.Status != StatusCompleted || len(d.Pages) == 0 {
		return false
	}
	for _, page := range d.Pages {
		if !page.HasRecognizedText() || !page.HasTranslatedText() {
			return false
		}
	}
	return true
}

// ThumbnailPage returns the first page, if any
func (d Document) ThumbnailPage() (DocumentPage, bool) {
	if len(d.Pages) == 0 {
		return DocumentPage{}, false
	}
	return d.Pages[0], true
}

// WithoutImages returns a copy of the document with page image payloads dropped
func (d Document) WithoutImages() Document {
	out := d.Clone()
	for i := range out.Pages {
		out.Pages[i].ImageData = nil
	}
	return out
}

// RemovePage returns a copy of the document without the given page; later pages are renumbered.
// Only pending documents can be edited.
func (d Document) RemovePage(pageID uuid.UUID) (Document, error) {
	if d.Status != StatusPending {
		return d, fmt.Errorf("cannot remove page from %s document", d.Status)
	}
	pages, ok := RemovePage(d.Pages, pageID)
	if !ok {
		return d, fmt.Errorf("page %s: %w", pageID, ErrNotFound)
	}
	out := d.Clone()
	out.Pages = pages
	return out, nil
}

// RemovePage drops the page with the given id and renumbers the rest so that
// page numbers stay 1-based and contiguous in original relative order.
func RemovePage(pages []DocumentPage, pageID uuid.UUID) ([]DocumentPage, bool) {
	out := make([]DocumentPage, 0, len(pages))
	found := false
	for _, page := range pages {
		if page.ID == pageID {
			found = true
			continue
		}
		out = append(out, page.Clone())
	}
	if !found {
		return pages, false
	}
	for i := range out {
		out[i].PageNumber = i + 1
	}
	return out, true
}

// ModelAvailability describes the local state of a translation model
type ModelAvailability struct {
	IsDownloaded     bool    `json:"is_downloaded"`
	DownloadProgress float64 `json:"download_progress"`
}

// RecognizedText represents the result of text recognition on one page
type RecognizedText struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Language   *Language `json:"language,omitempty"`
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document or page does not exist
	ErrNotFound = errors.New("not found")

	// ErrEmptyDocument is returned when a document without pages enters the pipeline
	ErrEmptyDocument = errors.New("document has no pages")

	// ErrTerminalStatus is returned when a completed or failed document is re-run
	ErrTerminalStatus = errors.New("document already in terminal status")
)

// RecognitionError is an OCR backend failure
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("text recognition failed: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// TranslationError is a translation backend failure
type TranslationError struct {
	Source string
	Target string
	Err    error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation %s->%s failed: %v", e.Source, e.Target, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// UnsupportedLanguageError means a language code has no backend mapping
type UnsupportedLanguageError struct {
	Code string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language: %q", e.Code)
}

// ModelDownloadError means a model download failed or was interrupted
type ModelDownloadError struct {
	Code string
	Err  error
}

func (e *ModelDownloadError) Error() string {
	return fmt.Sprintf("model download for %q failed: %v", e.Code, e.Err)
}

func (e *ModelDownloadError) Unwrap() error { return e.Err }

// DataIntegrityError flags a page that reached translation without recognized text.
// The pipeline logs it per page and fails the run with the first one.
type DataIntegrityError struct {
	PageNumber int
	Reason     string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation on page %d: %s", e.PageNumber, e.Reason)
}

// StorageError is a persistence layer failure
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// TimeoutError means a pipeline run exceeded its deadline
type TimeoutError struct {
	Phase ProcessingStatus
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("pipeline timed out while %s: %v", e.Phase, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// PageError attaches page context to a stage error
type PageError struct {
	PageNumber int
	Err        error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.PageNumber, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it is nil
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

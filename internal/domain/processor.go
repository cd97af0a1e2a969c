package domain

import "context"

// DocumentPipeline drives one document through recognition and translation
type DocumentPipeline interface {
	// Process returns a new snapshot of doc; the input value is never mutated.
	// On failure the returned document carries status failed and err is the triggering error.
	Process(ctx context.Context, doc Document) (Document, error)
}

// DocumentProcessor processes multiple documents while preserving order
type DocumentProcessor interface {
	// ProcessDocuments processes documents concurrently.
	// The order of results matches the order of input documents
	ProcessDocuments(ctx context.Context, documents []Document) ([]*ProcessedDocument, error)
}

// ProcessedDocument represents a processed document with result
type ProcessedDocument struct {
	Document Document
	Error    error
}

// RecognizerVariant selects a script-specific OCR model
type RecognizerVariant string

const (
	RecognizerLatin      RecognizerVariant = "latin"
	RecognizerChinese    RecognizerVariant = "chinese"
	RecognizerDevanagari RecognizerVariant = "devanagari"
	RecognizerJapanese   RecognizerVariant = "japanese"
	RecognizerKorean     RecognizerVariant = "korean"
)

// RecognitionBackend is the OCR engine
type RecognitionBackend interface {
	// Recognize extracts text from an encoded image. hint is nil when the script should be auto-detected.
	Recognize(ctx context.Context, image []byte, variant RecognizerVariant, hint *Language) (text string, confidence float64, err error)
}

// ProgressFunc receives download progress in [0,1]
type ProgressFunc func(progress float64)

// TranslationBackend is the offline translation engine and its model manager
type TranslationBackend interface {
	Translate(ctx context.Context, text, sourceCode, targetCode string) (string, error)
	IsModelDownloaded(ctx context.Context, code string) (bool, error)
	DownloadModel(ctx context.Context, code string, progress ProgressFunc) error
	DeleteModel(ctx context.Context, code string) error
}

// LanguageIdentifier detects the language of a text
type LanguageIdentifier interface {
	Identify(ctx context.Context, text string) (string, error)
}

// ModelTracker gates translation on locally available models
type ModelTracker interface {
	IsDownloaded(ctx context.Context, lang Language) bool
	DownloadProgress(lang Language) float64
	Download(ctx context.Context, lang Language) error
	Delete(ctx context.Context, lang Language) error
}

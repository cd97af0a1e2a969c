package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPages(n int) []DocumentPage {
	pages := make([]DocumentPage, n)
	for i := range pages {
		pages[i] = NewDocumentPage([]byte{byte(i), 0xFF}, i+1)
	}
	return pages
}

// TestRemovePageRenumbers tests that later pages are renumbered contiguously
func TestRemovePageRenumbers(t *testing.T) {
	pages := testPages(4)

	out, ok := RemovePage(pages, pages[1].ID)
	require.True(t, ok)
	require.Len(t, out, 3)

	assert.Equal(t, pages[0].ID, out[0].ID)
	assert.Equal(t, pages[2].ID, out[1].ID)
	assert.Equal(t, pages[3].ID, out[2].ID)
	for i, page := range out {
		assert.Equal(t, i+1, page.PageNumber)
	}

	// original slice untouched
	assert.Equal(t, 3, pages[2].PageNumber)
	assert.Equal(t, 4, pages[3].PageNumber)
}

func TestRemovePageUnknownID(t *testing.T) {
	pages := testPages(2)
	out, ok := RemovePage(pages, uuid.New())
	assert.False(t, ok)
	assert.Len(t, out, 2)
}

func TestDocumentRemovePageOnlyWhenPending(t *testing.T) {
	doc := NewDocument(testPages(3), Language{Code: "es"}, Language{Code: "en"})

	edited, err := doc.RemovePage(doc.Pages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, edited.PageCount())
	assert.Equal(t, 3, doc.PageCount())

	_, err = doc.RemovePage(uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))

	doc.Status = StatusCompleted
	_, err = doc.RemovePage(doc.Pages[0].ID)
	assert.Error(t, err)
}

// TestDocumentCloneIsIndependent tests value semantics of snapshots
func TestDocumentCloneIsIndependent(t *testing.T) {
	doc := NewDocument(testPages(2), Language{Code: "es"}, Language{Code: "en"})
	doc.Pages[0] = doc.Pages[0].WithRecognizedText("Hola")

	clone := doc.Clone()
	*clone.Pages[0].RecognizedText = "changed"
	clone.Pages[1].ImageData[0] = 0x42
	clone.Status = StatusFailed

	assert.Equal(t, "Hola", *doc.Pages[0].RecognizedText)
	assert.Equal(t, byte(1), doc.Pages[1].ImageData[0])
	assert.Equal(t, StatusPending, doc.Status)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ProcessingStatus
		allowed  bool
	}{
		{StatusPending, StatusRecognizing, true},
		{StatusRecognizing, StatusTranslating, true},
		{StatusRecognizing, StatusFailed, true},
		{StatusTranslating, StatusCompleted, true},
		{StatusTranslating, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusRecognizing, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusTranslating.IsTerminal())
}

func TestIsDisplayReady(t *testing.T) {
	doc := NewDocument(testPages(2), Language{Code: "es"}, Language{Code: "en"})
	for i := range doc.Pages {
		doc.Pages[i] = doc.Pages[i].WithRecognizedText("a").WithTranslatedText("b")
	}
	doc.Status = StatusCompleted
	assert.True(t, doc.IsDisplayReady())

	doc.Pages[1].TranslatedText = nil
	assert.False(t, doc.IsDisplayReady())

	doc.Status = StatusFailed
	assert.False(t, doc.IsDisplayReady())
}

// TestDocumentJSONKeepsAbsentText tests that unset text survives as null rather than ""
func TestDocumentJSONKeepsAbsentText(t *testing.T) {
	doc := NewDocument(testPages(2), Language{Code: "es", DisplayName: "Spanish"}, Language{Code: "en", DisplayName: "English"})
	doc.CreatedAt = time.Date(2025, 11, 19, 10, 0, 0, 0, time.UTC)
	doc.Pages[0] = doc.Pages[0].WithRecognizedText("")

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, doc, decoded)
	require.NotNil(t, decoded.Pages[0].RecognizedText)
	assert.Equal(t, "", *decoded.Pages[0].RecognizedText)
	assert.Nil(t, decoded.Pages[1].RecognizedText)
	assert.Nil(t, decoded.Pages[0].TranslatedText)
}

func TestImageQualityCompressionRatio(t *testing.T) {
	assert.Equal(t, 0.9, ImageQualityHigh.CompressionRatio())
	assert.Equal(t, 0.7, ImageQualityMedium.CompressionRatio())
	assert.NoError(t, ImageQualityHigh.Validate())
	assert.Error(t, ImageQuality("low").Validate())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("backend down")
	err := error(&PageError{PageNumber: 2, Err: &TranslationError{Source: "es", Target: "en", Err: cause}})

	var translationErr *TranslationError
	require.True(t, errors.As(err, &translationErr))
	assert.Equal(t, "es", translationErr.Source)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "page 2")

	assert.Nil(t, NewStorageError("save", nil))
}

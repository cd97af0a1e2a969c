// Package languages is the static registry of languages the service can translate.
package languages

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

var (
	AutoDetect = domain.Language{Code: domain.AutoDetectCode, DisplayName: "Auto-Detect", IsDownloaded: true}
	English    = domain.Language{Code: "en", DisplayName: "English"}
	Spanish    = domain.Language{Code: "es", DisplayName: "Spanish"}
	French     = domain.Language{Code: "fr", DisplayName: "French"}
	German     = domain.Language{Code: "de", DisplayName: "German"}
	Italian    = domain.Language{Code: "it", DisplayName: "Italian"}
	Portuguese = domain.Language{Code: "pt", DisplayName: "Portuguese"}
	Russian    = domain.Language{Code: "ru", DisplayName: "Russian"}
	Japanese   = domain.Language{Code: "ja", DisplayName: "Japanese"}
	Korean     = domain.Language{Code: "ko", DisplayName: "Korean"}
	Chinese    = domain.Language{Code: "zh", DisplayName: "Chinese (Simplified)"}
	Arabic     = domain.Language{Code: "ar", DisplayName: "Arabic"}
	Hindi      = domain.Language{Code: "hi", DisplayName: "Hindi"}
)

var all = []domain.Language{
	AutoDetect,
	English,
	Spanish,
	French,
	German,
	Italian,
	Portuguese,
	Russian,
	Japanese,
	Korean,
	Chinese,
	Arabic,
	Hindi,
}

var byCode = func() map[string]domain.Language {
	m := make(map[string]domain.Language, len(all))
	for _, l := range all {
		m[l.Code] = l
	}
	return m
}()

// All returns every supported language, auto-detect first
func All() []domain.Language {
	return append([]domain.Language(nil), all...)
}

// Translatable returns the supported languages excluding auto-detect
func Translatable() []domain.Language {
	return append([]domain.Language(nil), all[1:]...)
}

// Normalize canonicalises a user supplied code ("ES", "es-MX", "zh_Hans") to
// the base ISO 639-1 code. "auto" is returned unchanged.
func Normalize(code string) (string, error) {
	code = strings.TrimSpace(code)
	if strings.EqualFold(code, domain.AutoDetectCode) {
		return domain.AutoDetectCode, nil
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", &domain.UnsupportedLanguageError{Code: code}
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// Lookup resolves a code to its catalog entry
func Lookup(code string) (domain.Language, error) {
	normalized, err := Normalize(code)
	if err != nil {
		return domain.Language{}, err
	}
	l, ok := byCode[normalized]
	if !ok {
		return domain.Language{}, &domain.UnsupportedLanguageError{Code: code}
	}
	return l, nil
}

// IsSupported reports whether the code is in the catalog
func IsSupported(code string) bool {
	_, err := Lookup(code)
	return err == nil
}

// DisplayName returns the catalog name, falling back to the CLDR English name
// for codes outside the catalog.
func DisplayName(code string) string {
	if l, err := Lookup(code); err == nil {
		return l.DisplayName
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

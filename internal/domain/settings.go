package domain

import "fmt"

// ImageQuality controls how captured pages are compressed before storage
type ImageQuality string

const (
	ImageQualityHigh   ImageQuality = "high"
	ImageQualityMedium ImageQuality = "medium"
)

// CompressionRatio maps the quality to a JPEG compression ratio in (0,1]
func (q ImageQuality) CompressionRatio() float64 {
	switch q {
	case ImageQualityMedium:
		return 0.7
	default:
		return 0.9
	}
}

// Validate checks the quality value
func (q ImageQuality) Validate() error {
	switch q {
	case ImageQualityHigh, ImageQualityMedium:
		return nil
	}
	return fmt.Errorf("invalid image quality %q", q)
}

// AppSettings holds the user preferences persisted between runs
type AppSettings struct {
	SourceLanguage         Language     `json:"source_language" mapstructure:"source_language"`
	TargetLanguage         Language     `json:"target_language" mapstructure:"target_language"`
	AutoDetectLanguage     bool         `json:"auto_detect_language" mapstructure:"auto_detect_language"`
	AutoCapture            bool         `json:"auto_capture" mapstructure:"auto_capture"`
	FlashDefaultOn         bool         `json:"flash_default_on" mapstructure:"flash_default_on"`
	ImageQuality           ImageQuality `json:"image_quality" mapstructure:"image_quality"`
	KeepTranslationHistory bool         `json:"keep_translation_history" mapstructure:"keep_translation_history"`
	KeepOriginalImages     bool         `json:"keep_original_images" mapstructure:"keep_original_images"`
}

// DefaultSettings returns the settings used before the user changes anything
func DefaultSettings() AppSettings {
	return AppSettings{
		SourceLanguage:         Language{Code: AutoDetectCode, DisplayName: "Auto-Detect", IsDownloaded: true},
		TargetLanguage:         Language{Code: "en", DisplayName: "English"},
		AutoDetectLanguage:     true,
		AutoCapture:            true,
		FlashDefaultOn:         false,
		ImageQuality:           ImageQualityHigh,
		KeepTranslationHistory: true,
		KeepOriginalImages:     true,
	}
}

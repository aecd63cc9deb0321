package extractor

import "github.com/abadojack/whatlanggo"

// LanguageDetector returns an ISO 639-1 code, or nil when the language cannot be determined.
type LanguageDetector interface {
	Detect(text string) *string
}

type WhatlangDetector struct{}

func (WhatlangDetector) Detect(text string) *string {
	info := whatlanggo.Detect(text)
	if info.Lang == -1 {
		return nil
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return nil
	}
	return &code
}

package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/core/ports"
)

// Parser turns the bytes of one file format into ordered pages. Implementations fill text and
// image flags; language detection is done by Extractor.
type Parser interface {
	Parse(ctx context.Context, data []byte) ([]domain.Page, error)
}

// OCR recognizes text in an encoded image (PNG, JPEG).
type OCR interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type Options struct {
	// LanguagePrefix bounds how many characters of a page are used for language detection.
	LanguagePrefix int
	Detector       LanguageDetector
	Logger         *slog.Logger
}

// Extractor dispatches stored documents to a Parser by file extension.
type Extractor struct {
	storage ports.ObjectStorage
	parsers map[string]Parser
	prefix  int
	detect  LanguageDetector
	logger  *slog.Logger
}

func New(storage ports.ObjectStorage, parsers map[string]Parser, opts Options) *Extractor {
	normalized := make(map[string]Parser, len(parsers))
	for ext, p := range parsers {
		normalized[strings.ToLower(ext)] = p
	}
	if opts.LanguagePrefix <= 0 {
		opts.LanguagePrefix = 2000
	}
	if opts.Detector == nil {
		opts.Detector = WhatlangDetector{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{
		storage: storage,
		parsers: normalized,
		prefix:  opts.LanguagePrefix,
		detect:  opts.Detector,
		logger:  opts.Logger,
	}
}

// Supports reports whether a parser is registered for the filename's extension.
func (e *Extractor) Supports(filename string) bool {
	_, ok := e.parsers[strings.ToLower(filepath.Ext(filename))]
	return ok
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]domain.Page, domain.ExtractionMeta, error) {
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	parser, ok := e.parsers[ext]
	if !ok {
		return nil, domain.ExtractionMeta{}, domain.WrapError(
			domain.ErrUnsupportedFormat,
			"extract",
			fmt.Errorf("no parser for extension %q", ext),
		)
	}

	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, domain.ExtractionMeta{}, domain.WrapError(domain.ErrExtractionFailure, "open source document", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.ExtractionMeta{}, domain.WrapError(domain.ErrExtractionFailure, "read source document", err)
	}

	pages, err := parser.Parse(ctx, raw)
	if err != nil {
		if domain.IsKind(err, domain.ErrExtractionFailure) || domain.IsKind(err, domain.ErrUnsupportedFormat) {
			return nil, domain.ExtractionMeta{}, err
		}
		return nil, domain.ExtractionMeta{}, domain.WrapError(domain.ErrExtractionFailure, "parse "+ext, err)
	}
	if len(pages) == 0 {
		return nil, domain.ExtractionMeta{}, domain.WrapError(domain.ErrExtractionFailure, "parse "+ext, errors.New("document has no pages"))
	}

	for i := range pages {
		pages[i].Number = i + 1
		pages[i].TextRaw = nonBlank(pages[i].TextRaw)
		pages[i].TextOCR = nonBlank(pages[i].TextOCR)
		pages[i].Language = e.detectLanguage(pages[i].Text())
	}

	e.logger.Debug("document extracted", "document_id", doc.ID, "pages", len(pages))
	return pages, Summarize(pages), nil
}

func (e *Extractor) detectLanguage(text string) *string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) > e.prefix {
		runes = runes[:e.prefix]
	}
	return e.detect.Detect(string(runes))
}

// Summarize derives document-level metadata: the most frequent page language (ties go to the
// first seen) and whether OCR ran on any page.
func Summarize(pages []domain.Page) domain.ExtractionMeta {
	var meta domain.ExtractionMeta
	counts := map[string]int{}
	var order []string
	for _, p := range pages {
		if p.OCRApplied {
			meta.OCRApplied = true
		}
		if p.Language == nil {
			continue
		}
		if _, seen := counts[*p.Language]; !seen {
			order = append(order, *p.Language)
		}
		counts[*p.Language]++
	}

	best := 0
	for _, lang := range order {
		if counts[lang] > best {
			best = counts[lang]
			l := lang
			meta.LanguagePrimary = &l
		}
	}
	return meta
}

func nonBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

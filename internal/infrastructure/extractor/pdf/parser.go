package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor"
)

// Rasterizer renders one 1-based page of a PDF to an encoded image.
type Rasterizer interface {
	Render(ctx context.Context, data []byte, page, dpi int) ([]byte, error)
}

type Options struct {
	// MinTextChars is the trimmed native text length below which a page is treated as scanned.
	MinTextChars int
	DPI          int
	Logger       *slog.Logger
}

type Parser struct {
	ocr          extractor.OCR
	rasterizer   Rasterizer
	minTextChars int
	dpi          int
	logger       *slog.Logger
}

func NewParser(ocr extractor.OCR, rasterizer Rasterizer, opts Options) *Parser {
	if opts.MinTextChars <= 0 {
		opts.MinTextChars = 20
	}
	if opts.DPI <= 0 {
		opts.DPI = 200
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Parser{
		ocr:          ocr,
		rasterizer:   rasterizer,
		minTextChars: opts.MinTextChars,
		dpi:          opts.DPI,
		logger:       opts.Logger,
	}
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]domain.Page, error) {
	reader, err := openReader(data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "open pdf", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "open pdf", fmt.Errorf("pdf has no pages"))
	}

	pages := make([]domain.Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, p.parsePage(ctx, reader, data, i))
	}
	return pages, nil
}

func (p *Parser) parsePage(ctx context.Context, reader *pdf.Reader, data []byte, number int) domain.Page {
	page := domain.Page{Number: number}

	raw, hasImages, err := nativePageText(reader, number)
	if err != nil {
		p.logger.Warn("pdf page text extraction failed", "page", number, "error", err)
	}
	page.HasImages = hasImages
	if strings.TrimSpace(raw) != "" {
		page.TextRaw = &raw
	}

	if len([]rune(strings.TrimSpace(raw))) >= p.minTextChars || p.ocr == nil || p.rasterizer == nil {
		return page
	}

	image, err := p.rasterizer.Render(ctx, data, number, p.dpi)
	if err != nil {
		p.logger.Warn("pdf page rasterization failed", "page", number, "error", err)
		return page
	}
	text, err := p.ocr.Recognize(ctx, image)
	if err != nil {
		p.logger.Warn("pdf page ocr failed", "page", number, "error", err)
		return page
	}
	page.OCRApplied = true
	if strings.TrimSpace(text) != "" {
		page.TextOCR = &text
	}
	return page
}

func openReader(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// nativePageText reads the text layer of one page. A malformed page yields an error instead of
// a panic so the remaining pages can still be read.
func nativePageText(reader *pdf.Reader, number int) (text string, hasImages bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page: %v", r)
		}
	}()

	page := reader.Page(number)
	if page.V.IsNull() {
		return "", false, fmt.Errorf("page %d missing", number)
	}
	hasImages = pageHasImages(page)
	text, err = page.GetPlainText(nil)
	return text, hasImages, err
}

func pageHasImages(page pdf.Page) bool {
	xobjects := page.Resources().Key("XObject")
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}

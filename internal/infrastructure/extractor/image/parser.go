package image

import (
	"context"
	"errors"

	"github.com/kirillkom/docintel/internal/core/domain"
	"github.com/kirillkom/docintel/internal/infrastructure/extractor"
)

// Parser treats an image file as one page whose only text source is OCR.
type Parser struct {
	ocr extractor.OCR
}

func NewParser(ocr extractor.OCR) *Parser {
	return &Parser{ocr: ocr}
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]domain.Page, error) {
	if p.ocr == nil {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "ocr image", errors.New("ocr is not configured"))
	}
	text, err := p.ocr.Recognize(ctx, data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "ocr image", err)
	}
	return []domain.Page{{
		Number:     1,
		TextOCR:    &text,
		HasImages:  true,
		OCRApplied: true,
	}}, nil
}

package docx

import (
	"bytes"
	"context"

	"code.sajari.com/docconv"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// Parser reads a DOCX body as a single page without OCR.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, data []byte) ([]domain.Page, error) {
	text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "open docx", err)
	}
	return []domain.Page{{Number: 1, TextRaw: &text}}, nil
}

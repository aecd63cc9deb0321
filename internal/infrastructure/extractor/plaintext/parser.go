package plaintext

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// Parser reads UTF-8 text files as a single page.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, data []byte) ([]domain.Page, error) {
	if !utf8.Valid(data) {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "read text", errors.New("file is not valid utf-8"))
	}
	text := string(data)
	return []domain.Page{{Number: 1, TextRaw: &text}}, nil
}

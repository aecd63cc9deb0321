package spreadsheet

import (
	"bytes"
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// Parser reads every worksheet as one page, cells joined by tabs and rows by newlines.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(_ context.Context, data []byte) ([]domain.Page, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtractionFailure, "open xlsx", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	pages := make([]domain.Page, 0, len(sheets))
	for i, sheet := range sheets {
		page := domain.Page{Number: i + 1}
		rows, err := book.GetRows(sheet)
		if err == nil {
			text := sheetText(sheet, rows)
			page.TextRaw = &text
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func sheetText(name string, rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(name)
			b.WriteString("\n")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

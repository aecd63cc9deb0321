package usecase

import (
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const aggregateSeparator = "\n\n"

// AggregateChunks joins chunk texts in order until maxChars characters are used. The last
// included chunk is cut so the result is never longer than maxChars.
func AggregateChunks(chunks []domain.Chunk, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	sepLen := utf8.RuneCountInString(aggregateSeparator)

	var b strings.Builder
	used := 0
	for _, c := range chunks {
		if c.Text == "" {
			continue
		}
		if used > 0 {
			if used+sepLen >= maxChars {
				break
			}
			b.WriteString(aggregateSeparator)
			used += sepLen
		}

		text := []rune(c.Text)
		remaining := maxChars - used
		if len(text) >= remaining {
			b.WriteString(string(text[:remaining]))
			break
		}
		b.WriteString(c.Text)
		used += len(text)
	}
	return b.String()
}

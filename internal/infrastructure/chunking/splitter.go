package chunking

import (
	"unicode"

	"github.com/google/uuid"

	"github.com/kirillkom/docintel/internal/core/domain"
)

// Splitter cuts each page's authoritative text with a fixed character window.
// Chunks never cross a page boundary.
type Splitter struct {
	ChunkSize int
	Overlap   int
	newID     func() string
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 2000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
		newID:     uuid.NewString,
	}
}

// Step is the window advance. It is clamped to 1 when the overlap is not smaller than the window.
func (s *Splitter) Step() int {
	step := s.ChunkSize - s.Overlap
	if step < 1 {
		step = 1
	}
	return step
}

func (s *Splitter) Chunk(pages []domain.Page, documentID string) []domain.Chunk {
	var out []domain.Chunk
	for _, page := range pages {
		out = append(out, s.chunkPage(page, documentID)...)
	}
	return out
}

func (s *Splitter) chunkPage(page domain.Page, documentID string) []domain.Chunk {
	runes := []rune(page.Text())
	lo, hi := trimBounds(runes)
	if lo >= hi {
		return nil
	}

	step := s.Step()
	out := make([]domain.Chunk, 0, (hi-lo)/step+1)
	for start := lo; start < hi; start += step {
		end := start + s.ChunkSize
		if end > hi {
			end = hi
		}
		out = append(out, domain.Chunk{
			ID:         s.newID(),
			DocumentID: documentID,
			PageStart:  page.Number,
			PageEnd:    page.Number,
			CharStart:  start,
			CharEnd:    end,
			Language:   page.Language,
			Text:       string(runes[start:end]),
		})
		if end == hi {
			break
		}
	}
	return out
}

// trimBounds returns the rune range of text without leading and trailing whitespace, so chunk
// offsets stay relative to the stored page text.
func trimBounds(runes []rune) (int, int) {
	lo, hi := 0, len(runes)
	for lo < hi && unicode.IsSpace(runes[lo]) {
		lo++
	}
	for hi > lo && unicode.IsSpace(runes[hi-1]) {
		hi--
	}
	return lo, hi
}

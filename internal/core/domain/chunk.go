package domain

// Chunk is a bounded span of one page's authoritative text. Offsets are in characters (runes)
// within that page text and PageStart always equals PageEnd.
type Chunk struct {
	ID         string
	DocumentID string
	PageStart  int
	PageEnd    int
	CharStart  int
	CharEnd    int
	Language   *string
	Text       string
}

// ChunkPayload is the metadata stored next to a vector.
type ChunkPayload struct {
	DocumentID  string `json:"doc_id"`
	ChunkID     string `json:"chunk_id"`
	PageStart   int    `json:"page_start"`
	PageEnd     int    `json:"page_end"`
	TextSnippet string `json:"text_snippet"`
}

type SearchHit struct {
	PointID string       `json:"point_id"`
	Score   float64      `json:"score"`
	Payload ChunkPayload `json:"payload"`
}

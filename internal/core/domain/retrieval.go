package domain

// NoRelevantInformation is returned by question answering when retrieval yields no context.
const NoRelevantInformation = "I couldn't find any relevant information in the documents."

type Source struct {
	DocumentID string  `json:"doc_id"`
	Filename   string  `json:"filename"`
	PageStart  int     `json:"page_start"`
	PageEnd    int     `json:"page_end"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

type SearchResult struct {
	Query string   `json:"query"`
	Hits  []Source `json:"hits"`
}

type Answer struct {
	Question string   `json:"question"`
	Text     string   `json:"answer"`
	Sources  []Source `json:"sources"`
}

// GenerationRequest is a single call to a generation backend.
type GenerationRequest struct {
	System string
	Prompt string
	JSON   bool
}

type HealthComponent struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type HealthReport struct {
	OK          bool            `json:"ok"`
	DB          HealthComponent `json:"db"`
	VectorIndex HealthComponent `json:"vector_index"`
	LLM         HealthComponent `json:"llm"`
}

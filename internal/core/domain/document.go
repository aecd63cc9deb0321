package domain

import "time"

type DocumentStatus string

const (
	StatusPending        DocumentStatus = "pending"
	StatusExtracting     DocumentStatus = "extracting"
	StatusPersistingPage DocumentStatus = "persisting_pages"
	StatusIndexing       DocumentStatus = "chunking_embedding_indexing"
	StatusAnnotating     DocumentStatus = "annotating"
	StatusCompleted      DocumentStatus = "completed"
	StatusFailed         DocumentStatus = "failed"
)

// Terminal reports whether no further pipeline transition is expected.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID              string         `json:"doc_id"`
	Filename        string         `json:"filename"`
	MimeType        string         `json:"mime_type"`
	StoragePath     string         `json:"storage_path"`
	SizeBytes       int64          `json:"size_bytes"`
	LanguagePrimary *string        `json:"language_primary"`
	OCRApplied      bool           `json:"ocr_applied"`
	PageCount       int            `json:"page_count"`
	Status          DocumentStatus `json:"status"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"uploaded_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Page is one extracted page. Page numbers are 1-based and contiguous.
type Page struct {
	Number     int     `json:"page_number"`
	TextRaw    *string `json:"text_raw"`
	TextOCR    *string `json:"text_ocr"`
	Language   *string `json:"language"`
	HasImages  bool    `json:"has_images"`
	OCRApplied bool    `json:"ocr_applied"`
}

// Text returns the authoritative page text: OCR output when present, raw text otherwise.
func (p Page) Text() string {
	if p.TextOCR != nil && *p.TextOCR != "" {
		return *p.TextOCR
	}
	if p.TextRaw != nil {
		return *p.TextRaw
	}
	return ""
}

// ExtractionMeta is the document-level result of extraction.
type ExtractionMeta struct {
	LanguagePrimary *string
	OCRApplied      bool
}

// PageSummary is the detail view of a page, without its text.
type PageSummary struct {
	Number    int     `json:"page_number"`
	TextLen   int     `json:"text_len"`
	Language  *string `json:"language"`
	HasImages bool    `json:"has_images"`
	OCRUsed   bool    `json:"ocr_used"`
}

type DocumentDetail struct {
	Document
	Pages          []PageSummary   `json:"pages"`
	Summary        *Summary        `json:"summary"`
	Classification *Classification `json:"classification"`
	Extraction     map[string]any  `json:"extraction"`
	AnnotatedBy    string          `json:"annotation_model,omitempty"`
}

type DocumentPage struct {
	Total int        `json:"total"`
	Items []Document `json:"items"`
}

// UploadFile is one file of a batch upload.
type UploadFile struct {
	Filename string
	MimeType string
	Size     int64
	Body     []byte
}

// UploadResult reports the outcome for one uploaded file. DocumentID is empty on failure.
type UploadResult struct {
	Filename        string         `json:"filename"`
	DocumentID      string         `json:"doc_id"`
	Status          DocumentStatus `json:"status,omitempty"`
	PageCount       int            `json:"page_count"`
	OCRApplied      bool           `json:"ocr_applied"`
	LanguagePrimary *string        `json:"language_primary"`
	Error           *string        `json:"error"`
}

// ProcessingJob is a queued request to run the pipeline for one document.
type ProcessingJob struct {
	DocumentID string    `json:"document_id"`
	Resume     bool      `json:"resume,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

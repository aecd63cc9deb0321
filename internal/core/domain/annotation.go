package domain

import "time"

const (
	LabelSafetyBulletin    = "Safety Bulletin"
	LabelMaintenanceReport = "Maintenance Report"
	LabelVendorInvoice     = "Vendor Invoice"
	LabelContract          = "Contract"
	LabelHRPolicy          = "HR Policy"
	LabelLegalCompliance   = "Legal/Compliance"
	LabelEnvSafetyCircular = "Environmental/Safety Circular"
	LabelBoardMinutes      = "Board Minutes"
	LabelOther             = "Other"
)

var Labels = []string{
	LabelSafetyBulletin,
	LabelMaintenanceReport,
	LabelVendorInvoice,
	LabelContract,
	LabelHRPolicy,
	LabelLegalCompliance,
	LabelEnvSafetyCircular,
	LabelBoardMinutes,
	LabelOther,
}

type ExtractionKind string

const (
	ExtractionNone            ExtractionKind = ""
	ExtractionSafety          ExtractionKind = "safety"
	ExtractionInvoiceContract ExtractionKind = "invoice_contract"
)

// ExtractionKindFor maps a classification label to its extraction schema kind.
func ExtractionKindFor(label string) ExtractionKind {
	switch label {
	case LabelSafetyBulletin:
		return ExtractionSafety
	case LabelVendorInvoice, LabelContract:
		return ExtractionInvoiceContract
	default:
		return ExtractionNone
	}
}

// NormalizeLabel returns the canonical label, or Other when unknown.
func NormalizeLabel(label string) string {
	for _, l := range Labels {
		if l == label {
			return l
		}
	}
	return LabelOther
}

type PageRange struct {
	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`
}

type Summary struct {
	Bullets   []string    `json:"summary_bullets"`
	Citations []PageRange `json:"citations"`
}

type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Annotation is the single latest AI annotation of a document.
type Annotation struct {
	DocumentID     string         `json:"doc_id"`
	Summary        Summary        `json:"summary"`
	Classification Classification `json:"classification"`
	Extraction     map[string]any `json:"extraction"`
	Model          string         `json:"model"`
	CreatedAt      time.Time      `json:"created_at"`
}

package annotation

import (
	"fmt"
	"strings"

	"github.com/kirillkom/docintel/internal/core/domain"
)

const (
	systemJSON = "You are a document analysis assistant. You output only a single JSON object."
	systemQA   = "You answer questions about company documents using only the supplied context."

	correctionUnparsable = "Output valid JSON only, no prose."
	correctionSchema     = "Your previous output did not match the JSON schema. Output valid JSON only."
)

func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func summaryPrompt(text string) string {
	return `Summarize the document in 3 to 5 short bullet points and cite the page ranges the bullets come from.
Return JSON: {"summary_bullets":[string],"citations":[{"page_start":int,"page_end":int}]}

Document:
` + text
}

func classificationPrompt(text string) string {
	return fmt.Sprintf(`Classify the document into exactly one of these labels: %s.
Give a confidence between 0 and 1.
Return JSON: {"label":string,"confidence":number}

Document:
%s`, strings.Join(domain.Labels, ", "), text)
}

func safetyPrompt(text string) string {
	return `Extract the safety information from the document. Use null when a value is not stated and [] when a list is empty.
Return JSON: {"action_items":[{"text":string,"owner":string|null,"due_date":string|null,"page":int|null}],
"deadlines":[{"text":string,"date":string|null,"page":int|null}],
"equipment_affected":[string],"severity_level":string|null,
"references":[{"text":string,"page":int|null}]}

Document:
` + text
}

func invoiceContractPrompt(text string) string {
	return `Extract the key commercial fields from the document, without parsing full tables. Use null when a value is not stated and [] when a list is empty.
Return JSON: {"vendor_name":string|null,"invoice_number":string|null,"po_number":string|null,
"total_amount":{"value":number,"currency":string}|null,"payment_due_date":string|null,
"line_items":[{"description":string,"qty":number|null,"unit_price":number|null,"amount":number|null}],
"contract_effective_date":string|null,"contract_expiry_date":string|null,"penalty_clauses":[string]}

Document:
` + text
}

func answerPrompt(question string, sources []domain.Source) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. If the context does not contain the answer, say you don't know. Keep the answer concise and mention the source numbers you used.\n\nContext:\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] %s, pages %d-%d:\n%s\n\n", i+1, s.Filename, s.PageStart, s.PageEnd, s.Snippet)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

func withCorrection(prompt, correction string) string {
	if correction == "" {
		return prompt
	}
	return prompt + "\n\n" + correction
}

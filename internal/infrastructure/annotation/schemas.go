package annotation

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/docintel/internal/core/domain"
)

func pageRangeSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("page_start", openapi3.NewIntegerSchema().WithMin(1)).
		WithProperty("page_end", openapi3.NewIntegerSchema().WithMin(1))
	s.Required = []string{"page_start", "page_end"}
	return s
}

func nullableString() *openapi3.Schema {
	return openapi3.NewStringSchema().WithNullable()
}

func nullableInt() *openapi3.Schema {
	return openapi3.NewIntegerSchema().WithNullable()
}

func nullableNumber() *openapi3.Schema {
	return openapi3.NewFloat64Schema().WithNullable()
}

func summarySchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("summary_bullets", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()).WithMinItems(1)).
		WithProperty("citations", openapi3.NewArraySchema().WithItems(pageRangeSchema()))
	s.Required = []string{"summary_bullets"}
	return s
}

func classificationSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("label", openapi3.NewStringSchema()).
		WithProperty("confidence", openapi3.NewFloat64Schema())
	s.Required = []string{"label", "confidence"}
	return s
}

func safetySchema() *openapi3.Schema {
	actionItem := openapi3.NewObjectSchema().
		WithProperty("text", openapi3.NewStringSchema()).
		WithProperty("owner", nullableString()).
		WithProperty("due_date", nullableString()).
		WithProperty("page", nullableInt())
	actionItem.Required = []string{"text"}

	deadline := openapi3.NewObjectSchema().
		WithProperty("text", openapi3.NewStringSchema()).
		WithProperty("date", nullableString()).
		WithProperty("page", nullableInt())
	deadline.Required = []string{"text"}

	reference := openapi3.NewObjectSchema().
		WithProperty("text", openapi3.NewStringSchema()).
		WithProperty("page", nullableInt())
	reference.Required = []string{"text"}

	return openapi3.NewObjectSchema().
		WithProperty("action_items", openapi3.NewArraySchema().WithItems(actionItem)).
		WithProperty("deadlines", openapi3.NewArraySchema().WithItems(deadline)).
		WithProperty("equipment_affected", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("severity_level", nullableString()).
		WithProperty("references", openapi3.NewArraySchema().WithItems(reference))
}

func invoiceContractSchema() *openapi3.Schema {
	amount := openapi3.NewObjectSchema().
		WithProperty("value", openapi3.NewFloat64Schema()).
		WithProperty("currency", openapi3.NewStringSchema()).
		WithNullable()
	amount.Required = []string{"value", "currency"}

	lineItem := openapi3.NewObjectSchema().
		WithProperty("description", openapi3.NewStringSchema()).
		WithProperty("qty", nullableNumber()).
		WithProperty("unit_price", nullableNumber()).
		WithProperty("amount", nullableNumber())
	lineItem.Required = []string{"description"}

	return openapi3.NewObjectSchema().
		WithProperty("vendor_name", nullableString()).
		WithProperty("invoice_number", nullableString()).
		WithProperty("po_number", nullableString()).
		WithProperty("total_amount", amount).
		WithProperty("payment_due_date", nullableString()).
		WithProperty("line_items", openapi3.NewArraySchema().WithItems(lineItem)).
		WithProperty("contract_effective_date", nullableString()).
		WithProperty("contract_expiry_date", nullableString()).
		WithProperty("penalty_clauses", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
}

var (
	schemaSummary        = summarySchema()
	schemaClassification = classificationSchema()
	extractionSchemas    = map[domain.ExtractionKind]*openapi3.Schema{
		domain.ExtractionSafety:          safetySchema(),
		domain.ExtractionInvoiceContract: invoiceContractSchema(),
	}
)

// withDefaults returns a copy of obj holding exactly the schema's properties. Missing arrays
// become empty, missing scalars become null, and array items of object type are filled the same way.
func withDefaults(schema *openapi3.Schema, obj map[string]any) map[string]any {
	out := make(map[string]any, len(schema.Properties))
	for name, ref := range schema.Properties {
		prop := ref.Value
		v, ok := obj[name]
		switch {
		case prop.Type.Is(openapi3.TypeArray):
			items, _ := v.([]any)
			filled := make([]any, 0, len(items))
			for _, item := range items {
				if m, isObj := item.(map[string]any); isObj && prop.Items != nil && prop.Items.Value.Type.Is(openapi3.TypeObject) {
					item = withDefaults(prop.Items.Value, m)
				}
				filled = append(filled, item)
			}
			out[name] = filled
		case !ok:
			out[name] = nil
		default:
			if m, isObj := v.(map[string]any); isObj && prop.Type.Is(openapi3.TypeObject) {
				v = withDefaults(prop, m)
			}
			out[name] = v
		}
	}
	return out
}

package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldConfig declares one target field of a sheet schema.
type FieldConfig struct {
	Key              string           `json:"key"`
	Label            string           `json:"label"`
	Type             FieldType        `json:"type"`
	Required         bool             `json:"required,omitempty"`
	Unique           bool             `json:"unique,omitempty"`
	Validations      []ValidationRule `json:"validations,omitempty"`
	DefaultTransform string           `json:"default_transform,omitempty"`
}

// ValidationRule is one declarative rule attached to a field. Value carries
// the regex pattern (string) for regex rules or the numeric threshold for
// min/max rules. Custom rules name a validator in the host-supplied registry.
type ValidationRule struct {
	Type     RuleType       `json:"type"`
	Value    any            `json:"value,omitempty"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity,omitempty"`
	Name     string         `json:"name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

// EffectiveSeverity returns the rule's severity, defaulting to error.
func (r *ValidationRule) EffectiveSeverity() Severity {
	if r.Severity == SeverityWarning {
		return SeverityWarning
	}
	return SeverityError
}

// FieldMapping assigns one imported header to one target field key.
type FieldMapping struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Transform  string  `json:"transform,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// PipelineMappings is the canonical structured mapping representation.
type PipelineMappings struct {
	FieldMappings []FieldMapping `json:"field_mappings"`
	Delimiter     string         `json:"delimiter,omitempty"`
}

// FlatMap derives the legacy source→target map from a mapping list. An empty
// target marks a header that is explicitly unmapped. Transform and confidence
// are not representable in the flat form.
func FlatMap(mappings []FieldMapping) map[string]string {
	flat := make(map[string]string, len(mappings))
	for _, m := range mappings {
		flat[m.Source] = m.Target
	}
	return flat
}

// FromFlatMap rebuilds a mapping list from the legacy flat form. Headers are
// emitted in sorted order so the conversion is deterministic; unmapped entries
// are dropped.
func FromFlatMap(flat map[string]string) []FieldMapping {
	sources := make([]string, 0, len(flat))
	for src := range flat {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	mappings := make([]FieldMapping, 0, len(flat))
	for _, src := range sources {
		if flat[src] == "" {
			continue
		}
		mappings = append(mappings, FieldMapping{Source: src, Target: flat[src]})
	}
	return mappings
}

// ImportedData is the decoded content of one uploaded file: de-duplicated
// headers in original order plus one raw value dictionary per row.
type ImportedData struct {
	Headers []string         `json:"headers"`
	Rows    []map[string]any `json:"rows"`
}

// CellError is one validation finding on a single cell. Row is the 0-based
// original row index, not the array position after filtering.
//
// PinRow marks a Row set deliberately by a custom validator: without it, a
// zero Row on an error built for a later row is treated as omitted and filled
// from the row under validation.
type CellError struct {
	Row      int      `json:"row"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	PinRow   bool     `json:"-"`
}

// DataRow is one processed row: coerced field values plus accumulated cell
// errors. IsValid holds iff no entry has error severity.
type DataRow struct {
	ID      string         `json:"id"`
	Data    map[string]any `json:"data"`
	Errors  []CellError    `json:"errors"`
	IsValid bool           `json:"is_valid"`
}

// RowID formats the stable row identifier for an original row index.
func RowID(index int) string {
	return fmt.Sprintf("row-%d", index)
}

// RowIndexFromID parses a row identifier back to its original index.
func RowIndexFromID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "row-")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// RecomputeValidity derives IsValid from the current error list.
func (r *DataRow) RecomputeValidity() {
	for i := range r.Errors {
		if r.Errors[i].Severity == SeverityError {
			r.IsValid = false
			return
		}
	}
	r.IsValid = true
}

// SheetConfig is one named table schema within a workbook configuration.
// Mappings, when present, seeds the header→field assignment and short-circuits
// auto-mapping.
type SheetConfig struct {
	Name     string            `json:"name"`
	Slug     string            `json:"slug"`
	Fields   []FieldConfig     `json:"fields"`
	Mappings *PipelineMappings `json:"mappings,omitempty"`
}

// FieldByKey returns the field config for a key, or nil.
func (s *SheetConfig) FieldByKey(key string) *FieldConfig {
	for i := range s.Fields {
		if s.Fields[i].Key == key {
			return &s.Fields[i]
		}
	}
	return nil
}

// SchemaSignature returns the sorted field-key list joined with commas. Saved
// mappings carry the signature of the schema they were created against and
// are ignored when it no longer matches.
func (s *SheetConfig) SchemaSignature() string {
	keys := make([]string, 0, len(s.Fields))
	for i := range s.Fields {
		keys = append(keys, s.Fields[i].Key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// SavedMapping is a persisted last-used field mapping for one
// (namespace, sheet slug) pair.
type SavedMapping struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	Namespace       string          `db:"namespace" json:"namespace"`
	SheetSlug       string          `db:"sheet_slug" json:"sheet_slug"`
	SchemaSignature string          `db:"schema_signature" json:"schema_signature"`
	Mappings        json.RawMessage `db:"mappings" json:"mappings"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

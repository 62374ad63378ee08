// Package pipeline combines mapping, transforms, coercion, and validation
// into the per-row processing step, and drives it over whole datasets in
// bounded, supersedable batches.
package pipeline

import (
	"fmt"

	"tabflow/internal/coerce"
	"tabflow/internal/domain"
	"tabflow/internal/transform"
	"tabflow/internal/validator"
)

// Processor applies the full cell pipeline for one sheet: for every mapped
// header, transform → coerce → validate, then synthetic errors for required
// fields that never got a value.
type Processor struct {
	sheet      *domain.SheetConfig
	mappings   []domain.FieldMapping
	transforms transform.Registry
	validators *validator.Registry
}

// NewProcessor builds a Processor for a sheet and mapping list. The registries
// are read-only for the lifetime of a processing run.
func NewProcessor(sheet *domain.SheetConfig, mappings []domain.FieldMapping, transforms transform.Registry, validators *validator.Registry) *Processor {
	return &Processor{
		sheet:      sheet,
		mappings:   mappings,
		transforms: transforms,
		validators: validators,
	}
}

// ProcessRow runs the pipeline over one raw row. Fields are processed in
// mapping order, and each field's validation sees the already-coerced values
// of the fields processed before it, not their raw forms.
func (p *Processor) ProcessRow(raw map[string]any, rowIndex int) domain.DataRow {
	data := make(map[string]any, len(p.mappings))
	var errs []domain.CellError

	for i := range p.mappings {
		m := &p.mappings[i]
		rawValue, ok := raw[m.Source]
		if !ok {
			continue
		}
		field := p.sheet.FieldByKey(m.Target)
		if field == nil {
			continue
		}

		transformName := m.Transform
		if transformName == "" {
			transformName = field.DefaultTransform
		}
		value := p.transforms.Apply(transformName, rawValue)
		value = coerce.Value(value, field.Type)
		data[field.Key] = value

		errs = append(errs, validator.ValidateCell(value, field, rowIndex, data, p.validators)...)
	}

	// Required fields that never got populated: either unmapped, or the source
	// header is absent from this particular row.
	for i := range p.sheet.Fields {
		field := &p.sheet.Fields[i]
		if !field.Required {
			continue
		}
		if _, ok := data[field.Key]; ok {
			continue
		}
		errs = append(errs, domain.CellError{
			Row:      rowIndex,
			Field:    field.Key,
			Message:  field.Label + " is required but not mapped",
			Severity: domain.SeverityError,
		})
	}

	row := domain.DataRow{
		ID:     domain.RowID(rowIndex),
		Data:   data,
		Errors: errs,
	}
	row.RecomputeValidity()
	return row
}

// ApplyUniqueness scans the complete row set for every unique-marked field,
// flagging repeats against their first occurrence. Both the first-seen row
// and each repeat receive a duplicate error and lose validity. Empty values
// are exempt. This must run after per-row validation, never interleaved with
// it, because it needs the full set.
func (p *Processor) ApplyUniqueness(rows []domain.DataRow) {
	for i := range p.sheet.Fields {
		field := &p.sheet.Fields[i]
		if !field.Unique {
			continue
		}

		firstSeen := make(map[string]int, len(rows))
		for j := range rows {
			value, ok := rows[j].Data[field.Key]
			if !ok || coerce.IsEmpty(value) {
				continue
			}
			key := coerce.String(value)
			first, dup := firstSeen[key]
			if !dup {
				firstSeen[key] = j
				continue
			}
			msg := fmt.Sprintf("Duplicate value %q for %s", key, field.Label)
			markDuplicate(&rows[first], field.Key, msg)
			markDuplicate(&rows[j], field.Key, msg)
		}
	}
}

func markDuplicate(row *domain.DataRow, fieldKey, msg string) {
	idx, _ := domain.RowIndexFromID(row.ID)
	row.Errors = append(row.Errors, domain.CellError{
		Row:      idx,
		Field:    fieldKey,
		Message:  msg,
		Severity: domain.SeverityError,
	})
	row.IsValid = false
}

// ReprocessCell coerces and validates a single edited cell in place. Only the
// edited field's prior errors are replaced; the rest of the row is untouched,
// and the cross-row uniqueness pass is deliberately not re-run (fixing a
// duplicate leaves its former partner flagged until the next full pass).
func (p *Processor) ReprocessCell(row *domain.DataRow, fieldKey string, rawValue any) error {
	field := p.sheet.FieldByKey(fieldKey)
	if field == nil {
		return fmt.Errorf("no field %q in sheet %q", fieldKey, p.sheet.Slug)
	}
	rowIndex, ok := domain.RowIndexFromID(row.ID)
	if !ok {
		return fmt.Errorf("malformed row id %q", row.ID)
	}

	if row.Data == nil {
		row.Data = make(map[string]any, 1)
	}
	value := coerce.Value(rawValue, field.Type)
	row.Data[field.Key] = value

	kept := row.Errors[:0]
	for _, e := range row.Errors {
		if e.Field != field.Key {
			kept = append(kept, e)
		}
	}
	row.Errors = append(kept, validator.ValidateCell(value, field, rowIndex, row.Data, p.validators)...)
	row.RecomputeValidity()
	return nil
}

// CollectErrors flattens the union of all rows' errors, in row order.
func CollectErrors(rows []domain.DataRow) []domain.CellError {
	var all []domain.CellError
	for i := range rows {
		all = append(all, rows[i].Errors...)
	}
	return all
}

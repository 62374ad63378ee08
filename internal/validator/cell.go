// Package validator evaluates declarative field rules against coerced cell
// values. Cross-row uniqueness is deliberately not evaluated here; it needs
// the complete row set and runs as a separate pass in the pipeline package.
package validator

import (
	"math"
	"regexp"
	"strings"

	"tabflow/internal/coerce"
	"tabflow/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// booleanForms are the accepted string forms for a boolean cell.
var booleanForms = map[string]bool{
	"true": true, "false": true, "1": true, "0": true, "yes": true, "no": true,
}

// ValidateCell checks one coerced value against a field's required flag, its
// declared type, and its rule list, accumulating every finding.
//
// The required check short-circuits: a required field with an empty value
// yields exactly one error and nothing else runs for that cell. An empty
// optional value is always valid except for custom rules, which still run so
// hosts can implement their own presence semantics.
func ValidateCell(value any, field *domain.FieldConfig, rowIndex int, rowData map[string]any, registry *Registry) []domain.CellError {
	var errs []domain.CellError

	empty := coerce.IsEmpty(value)
	if field.Required && empty {
		return []domain.CellError{{
			Row:      rowIndex,
			Field:    field.Key,
			Message:  field.Label + " is required",
			Severity: domain.SeverityError,
		}}
	}

	if !empty {
		if err := checkType(value, field, rowIndex); err != nil {
			errs = append(errs, *err)
		}
	}

	for i := range field.Validations {
		rule := &field.Validations[i]
		switch rule.Type {
		case domain.RuleRegex:
			if empty {
				continue
			}
			if err := checkRegex(value, rule, field, rowIndex); err != nil {
				errs = append(errs, *err)
			}
		case domain.RuleMin, domain.RuleMax:
			if empty {
				continue
			}
			if err := checkBound(value, rule, field, rowIndex); err != nil {
				errs = append(errs, *err)
			}
		case domain.RuleCustom:
			if err := runCustom(value, rule, field, rowIndex, rowData, registry); err != nil {
				errs = append(errs, *err)
			}
		}
	}

	return errs
}

func checkType(value any, field *domain.FieldConfig, rowIndex int) *domain.CellError {
	var msg string
	switch field.Type {
	case domain.FieldTypeNumber:
		if math.IsNaN(coerce.Number(value)) {
			msg = field.Label + " must be a number"
		}
	case domain.FieldTypeEmail:
		if !emailPattern.MatchString(coerce.String(value)) {
			msg = field.Label + " must be a valid email address"
		}
	case domain.FieldTypeDate:
		if _, ok := coerce.ParseDate(coerce.String(value)); !ok {
			msg = field.Label + " must be a valid date"
		}
	case domain.FieldTypeBoolean:
		if !booleanForms[strings.ToLower(strings.TrimSpace(coerce.String(value)))] {
			msg = field.Label + " must be a boolean value"
		}
	}
	if msg == "" {
		return nil
	}
	return &domain.CellError{Row: rowIndex, Field: field.Key, Message: msg, Severity: domain.SeverityError}
}

func checkRegex(value any, rule *domain.ValidationRule, field *domain.FieldConfig, rowIndex int) *domain.CellError {
	pattern, ok := rule.Value.(string)
	if !ok {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		// An uncompilable pattern is a config fault, tolerated as a no-op.
		return nil
	}
	if re.MatchString(coerce.String(value)) {
		return nil
	}
	return &domain.CellError{
		Row:      rowIndex,
		Field:    field.Key,
		Message:  rule.Message,
		Severity: rule.EffectiveSeverity(),
	}
}

// checkBound compares numerically for number fields and by string length for
// everything else.
func checkBound(value any, rule *domain.ValidationRule, field *domain.FieldConfig, rowIndex int) *domain.CellError {
	threshold := coerce.Number(rule.Value)
	if math.IsNaN(threshold) {
		return nil
	}

	var actual float64
	if field.Type == domain.FieldTypeNumber {
		actual = coerce.Number(value)
	} else {
		actual = float64(len([]rune(coerce.String(value))))
	}

	failed := (rule.Type == domain.RuleMin && actual < threshold) ||
		(rule.Type == domain.RuleMax && actual > threshold)
	if !failed {
		return nil
	}
	return &domain.CellError{
		Row:      rowIndex,
		Field:    field.Key,
		Message:  rule.Message,
		Severity: rule.EffectiveSeverity(),
	}
}

func runCustom(value any, rule *domain.ValidationRule, field *domain.FieldConfig, rowIndex int, rowData map[string]any, registry *Registry) (cellErr *domain.CellError) {
	fn := registry.Get(rule.Name)
	if fn == nil {
		return nil
	}

	// A panicking validator is treated the same as a missing one.
	defer func() {
		if recover() != nil {
			cellErr = nil
		}
	}()

	result := fn(value, field, rowIndex, rowData, rule.Args)
	switch r := result.(type) {
	case nil:
		return nil
	case bool:
		if r {
			return nil
		}
		return &domain.CellError{
			Row:      rowIndex,
			Field:    field.Key,
			Message:  rule.Message,
			Severity: rule.EffectiveSeverity(),
		}
	case string:
		return &domain.CellError{
			Row:      rowIndex,
			Field:    field.Key,
			Message:  r,
			Severity: rule.EffectiveSeverity(),
		}
	case domain.CellError:
		return fillDefaults(&r, rule, field, rowIndex)
	case *domain.CellError:
		if r == nil {
			return nil
		}
		return fillDefaults(r, rule, field, rowIndex)
	default:
		return nil
	}
}

// fillDefaults completes a validator-built error with the rule's row, field,
// message, and severity for any omitted properties.
func fillDefaults(e *domain.CellError, rule *domain.ValidationRule, field *domain.FieldConfig, rowIndex int) *domain.CellError {
	out := *e
	if out.Row == 0 && !out.PinRow {
		out.Row = rowIndex
	}
	if out.Field == "" {
		out.Field = field.Key
	}
	if out.Message == "" {
		out.Message = rule.Message
	}
	if out.Severity == "" {
		out.Severity = rule.EffectiveSeverity()
	}
	return &out
}

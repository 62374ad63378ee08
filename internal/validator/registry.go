package validator

import "tabflow/internal/domain"

// CustomFunc is a host-registered validator invoked for custom rules. It
// receives the coerced cell value, the field config, the 0-based row index,
// the row's already-processed values, and the rule's static args.
//
// Return semantics: nil or true means valid; false fails with the rule's
// message; a string fails with that string as the message; a CellError (or
// *CellError) is used as-is with omitted properties filled from the rule.
type CustomFunc func(value any, field *domain.FieldConfig, rowIndex int, rowData map[string]any, args map[string]any) any

// Registry maps custom rule names to validator functions.
type Registry struct {
	validators map[string]CustomFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[string]CustomFunc)}
}

// Register adds a validator to the registry.
func (r *Registry) Register(name string, fn CustomFunc) {
	r.validators[name] = fn
}

// Get returns the validator for a given name, or nil if not found. A missing
// entry is tolerated by the engine as a no-op.
func (r *Registry) Get(name string) CustomFunc {
	if r == nil {
		return nil
	}
	return r.validators[name]
}

// Package mapping owns the live header→field assignment for an import
// session. The structured mapping list is the single canonical state; the
// legacy flat map is always derived from it, never stored.
package mapping

import (
	"sync"

	"tabflow/internal/domain"
)

// Controller maintains the canonical mapping list for one sheet and enforces
// the assignment invariants: at most one live mapping per target field and at
// most one per source header. Every mutation invalidates previously processed
// data, so the controller notifies its change hook to schedule a new
// processing pass.
type Controller struct {
	mu       sync.Mutex
	sheet    *domain.SheetConfig
	headers  []string
	mappings []domain.FieldMapping
	onChange func()
}

// NewController creates a Controller seeded with an initial mapping list.
// onChange may be nil; when set it is invoked after every mutation, outside
// the controller lock.
func NewController(sheet *domain.SheetConfig, headers []string, seed []domain.FieldMapping, onChange func()) *Controller {
	return &Controller{
		sheet:    sheet,
		headers:  headers,
		mappings: Compact(FilterForHeaders(seed, headers)),
		onChange: onChange,
	}
}

// Mappings returns a copy of the canonical mapping list.
func (c *Controller) Mappings() []domain.FieldMapping {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.FieldMapping, len(c.mappings))
	copy(out, c.mappings)
	return out
}

// Flat derives the legacy source→target map. Every imported header gets an
// entry; unmapped headers carry an empty target.
func (c *Controller) Flat() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	flat := make(map[string]string, len(c.headers))
	for _, h := range c.headers {
		flat[h] = ""
	}
	for _, m := range c.mappings {
		flat[m.Source] = m.Target
	}
	return flat
}

// SetMapping assigns one source header to a target field key, or clears the
// source's assignment when target is empty. Assigning a target first evicts
// any other source currently claiming it (last write wins). The mapping's
// transform is preserved when the source already had one, else inferred from
// the target field's default transform.
func (c *Controller) SetMapping(source, target string) {
	c.mu.Lock()

	var existingTransform string
	kept := c.mappings[:0]
	for _, m := range c.mappings {
		if m.Source == source {
			existingTransform = m.Transform
			continue
		}
		if target != "" && m.Target == target {
			continue
		}
		kept = append(kept, m)
	}
	c.mappings = kept

	if target != "" {
		transform := existingTransform
		if transform == "" {
			if field := c.sheet.FieldByKey(target); field != nil {
				transform = field.DefaultTransform
			}
		}
		c.mappings = append(c.mappings, domain.FieldMapping{
			Source:    source,
			Target:    target,
			Transform: transform,
		})
	}

	c.mu.Unlock()
	c.notify()
}

// SetFieldMappings replaces the whole mapping list with a compacted copy of
// the input: entries without a target are dropped and, when several entries
// share a target, the last occurrence wins.
func (c *Controller) SetFieldMappings(list []domain.FieldMapping) {
	c.mu.Lock()
	c.mappings = Compact(FilterForHeaders(list, c.headers))
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

// Compact de-duplicates a mapping list by target key (last occurrence wins)
// and by source, silently dropping entries without a target. Surviving
// entries keep their relative input order.
func Compact(list []domain.FieldMapping) []domain.FieldMapping {
	seenTarget := make(map[string]bool, len(list))
	seenSource := make(map[string]bool, len(list))
	out := make([]domain.FieldMapping, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		m := list[i]
		if m.Target == "" || seenTarget[m.Target] || seenSource[m.Source] {
			continue
		}
		seenTarget[m.Target] = true
		seenSource[m.Source] = true
		out = append(out, m)
	}
	// reverse back to input order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// FilterForHeaders drops mappings whose source header is not present in the
// current file. Seeded mappings from a workbook config or a saved mapping may
// reference columns the uploaded file does not have.
func FilterForHeaders(list []domain.FieldMapping, headers []string) []domain.FieldMapping {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	out := make([]domain.FieldMapping, 0, len(list))
	for _, m := range list {
		if present[m.Source] {
			out = append(out, m)
		}
	}
	return out
}

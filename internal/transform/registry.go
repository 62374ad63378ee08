// Package transform holds the named value-to-value transforms applied to a
// cell before type coercion. The registry is host-extensible; lookups and
// application are fail-open so a bad transform never breaks the pipeline.
package transform

import (
	"strings"

	"tabflow/internal/coerce"
)

// Func is a pure value-to-value transform.
type Func func(any) any

// Registry maps transform names to functions.
type Registry map[string]Func

// NewRegistry returns a registry pre-populated with the built-in transforms.
func NewRegistry() Registry {
	r := make(Registry, len(builtins))
	for name, fn := range builtins {
		r[name] = fn
	}
	return r
}

// Register adds or replaces a named transform.
func (r Registry) Register(name string, fn Func) {
	r[name] = fn
}

// Apply runs the named transform on a value. A name absent from the registry,
// a nil function, or a transform that panics all leave the value unchanged.
func (r Registry) Apply(name string, value any) (result any) {
	if name == "" {
		return value
	}
	fn, ok := r[name]
	if !ok || fn == nil {
		return value
	}

	defer func() {
		if recover() != nil {
			result = value
		}
	}()
	return fn(value)
}

var builtins = map[string]Func{
	"trim": func(v any) any {
		return strings.TrimSpace(coerce.String(v))
	},
	"toLowerCase": func(v any) any {
		return strings.ToLower(coerce.String(v))
	},
	"toUpperCase": func(v any) any {
		return strings.ToUpper(coerce.String(v))
	},
	"capitalize": func(v any) any {
		return capitalize(coerce.String(v))
	},
	"toNumber": func(v any) any {
		if coerce.IsEmpty(v) {
			return nil
		}
		return coerce.Number(v)
	},
	"formatPhoneNumber": func(v any) any {
		return digitsOnly(coerce.String(v))
	},
	"formatEmail": func(v any) any {
		return strings.ToLower(strings.TrimSpace(coerce.String(v)))
	},
}

// capitalize lowercases the whole string, then uppercases the first letter of
// each word.
func capitalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range strings.ToLower(s) {
		if r == ' ' || r == '\t' || r == '\n' {
			startOfWord = true
			b.WriteRune(r)
			continue
		}
		if startOfWord {
			b.WriteString(strings.ToUpper(string(r)))
			startOfWord = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

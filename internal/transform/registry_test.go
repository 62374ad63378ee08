package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tabflow/internal/transform"
)

func TestBuiltins(t *testing.T) {
	r := transform.NewRegistry()

	assert.Equal(t, "hello", r.Apply("trim", "  hello  "))
	assert.Equal(t, "hello", r.Apply("toLowerCase", "HeLLo"))
	assert.Equal(t, "HELLO", r.Apply("toUpperCase", "hello"))
	assert.Equal(t, "John Smith", r.Apply("capitalize", "jOHN sMITH"))
	assert.Equal(t, 12.5, r.Apply("toNumber", "12.5"))
	assert.Equal(t, "5551234567", r.Apply("formatPhoneNumber", "(555) 123-4567"))
	assert.Equal(t, "a@b.co", r.Apply("formatEmail", "  A@B.CO "))
}

func TestApplyEmptyNameIsIdentity(t *testing.T) {
	r := transform.NewRegistry()
	assert.Equal(t, "  x ", r.Apply("", "  x "))
}

func TestApplyUnknownNameIsIdentity(t *testing.T) {
	r := transform.NewRegistry()
	assert.Equal(t, "value", r.Apply("noSuchTransform", "value"))
}

func TestApplyNilFuncIsIdentity(t *testing.T) {
	r := transform.NewRegistry()
	r.Register("broken", nil)
	assert.Equal(t, "value", r.Apply("broken", "value"))
}

func TestApplyRecoversPanics(t *testing.T) {
	r := transform.NewRegistry()
	r.Register("explode", func(any) any { panic("boom") })
	assert.Equal(t, "value", r.Apply("explode", "value"))
}

func TestRegisterOverridesBuiltin(t *testing.T) {
	r := transform.NewRegistry()
	r.Register("trim", func(v any) any { return "custom" })
	assert.Equal(t, "custom", r.Apply("trim", "  x "))
}

func TestToNumberEmptyBecomesNil(t *testing.T) {
	r := transform.NewRegistry()
	assert.Nil(t, r.Apply("toNumber", ""))
}

package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tabflow/internal/domain"
	"tabflow/internal/pipeline"
	"tabflow/internal/transform"
	"tabflow/internal/validator"
)

func contactSheet() *domain.SheetConfig {
	return &domain.SheetConfig{
		Name: "Contacts",
		Slug: "contacts",
		Fields: []domain.FieldConfig{
			{Key: "name", Label: "Name", Type: domain.FieldTypeString, Required: true, DefaultTransform: "capitalize"},
			{Key: "email", Label: "Email", Type: domain.FieldTypeEmail, Unique: true},
			{Key: "age", Label: "Age", Type: domain.FieldTypeNumber},
		},
	}
}

func contactMappings() []domain.FieldMapping {
	return []domain.FieldMapping{
		{Source: "Full Name", Target: "name"},
		{Source: "E-mail", Target: "email", Transform: "formatEmail"},
		{Source: "Age", Target: "age"},
	}
}

func newProcessor(sheet *domain.SheetConfig, mappings []domain.FieldMapping) *pipeline.Processor {
	return pipeline.NewProcessor(sheet, mappings, transform.NewRegistry(), validator.NewRegistry())
}

func TestProcessRowTransformsCoercesValidates(t *testing.T) {
	proc := newProcessor(contactSheet(), contactMappings())

	row := proc.ProcessRow(map[string]any{
		"Full Name": "jane doe",
		"E-mail":    "  JANE@EXAMPLE.COM ",
		"Age":       "41",
	}, 0)

	assert.Equal(t, "row-0", row.ID)
	assert.Equal(t, "Jane Doe", row.Data["name"])
	assert.Equal(t, "jane@example.com", row.Data["email"])
	assert.Equal(t, 41.0, row.Data["age"])
	assert.Empty(t, row.Errors)
	assert.True(t, row.IsValid)
}

func TestProcessRowRequiredMissingMapping(t *testing.T) {
	// Only email mapped: the required name field gets a synthetic error.
	proc := newProcessor(contactSheet(), []domain.FieldMapping{{Source: "E-mail", Target: "email"}})

	row := proc.ProcessRow(map[string]any{"E-mail": "a@b.co"}, 2)

	assert.False(t, row.IsValid)
	assert.Len(t, row.Errors, 1)
	assert.Equal(t, "Name is required but not mapped", row.Errors[0].Message)
	assert.Equal(t, "name", row.Errors[0].Field)
	assert.Equal(t, 2, row.Errors[0].Row)
}

func TestProcessRowSkipsUnknownTargetsAndAbsentSources(t *testing.T) {
	mappings := append(contactMappings(), domain.FieldMapping{Source: "Extra", Target: "no_such_field"})
	proc := newProcessor(contactSheet(), mappings)

	row := proc.ProcessRow(map[string]any{"Full Name": "ada", "Extra": "x"}, 0)

	assert.Equal(t, "Ada", row.Data["name"])
	_, present := row.Data["no_such_field"]
	assert.False(t, present)
	_, present = row.Data["email"]
	assert.False(t, present, "absent source leaves the field unpopulated")
}

func TestApplyUniquenessFlagsFirstAndRepeats(t *testing.T) {
	proc := newProcessor(contactSheet(), contactMappings())

	rows := []domain.DataRow{
		proc.ProcessRow(map[string]any{"Full Name": "a", "E-mail": "dup@x.co"}, 0),
		proc.ProcessRow(map[string]any{"Full Name": "b", "E-mail": "unique@x.co"}, 1),
		proc.ProcessRow(map[string]any{"Full Name": "c", "E-mail": "dup@x.co"}, 2),
		proc.ProcessRow(map[string]any{"Full Name": "d", "E-mail": "dup@x.co"}, 3),
	}
	proc.ApplyUniqueness(rows)

	assert.False(t, rows[0].IsValid, "first occurrence is flagged too")
	assert.True(t, rows[1].IsValid)
	assert.False(t, rows[2].IsValid)
	assert.False(t, rows[3].IsValid)

	assert.Equal(t, `Duplicate value "dup@x.co" for Email`, rows[2].Errors[0].Message)
	// The first row is re-flagged once per repeat.
	assert.Len(t, rows[0].Errors, 2)
}

func TestApplyUniquenessIgnoresEmptyValues(t *testing.T) {
	proc := newProcessor(contactSheet(), contactMappings())

	rows := []domain.DataRow{
		proc.ProcessRow(map[string]any{"Full Name": "a", "E-mail": ""}, 0),
		proc.ProcessRow(map[string]any{"Full Name": "b", "E-mail": ""}, 1),
	}
	proc.ApplyUniqueness(rows)

	assert.True(t, rows[0].IsValid)
	assert.True(t, rows[1].IsValid)
}

func TestReprocessCellReplacesOnlyThatFieldsErrors(t *testing.T) {
	proc := newProcessor(contactSheet(), contactMappings())

	row := proc.ProcessRow(map[string]any{
		"Full Name": "",
		"E-mail":    "bad-email",
		"Age":       "x",
	}, 0)
	assert.False(t, row.IsValid)
	assert.Len(t, row.Errors, 3)

	err := proc.ReprocessCell(&row, "email", "fixed@x.co")
	assert.NoError(t, err)

	assert.Equal(t, "fixed@x.co", row.Data["email"])
	for _, e := range row.Errors {
		assert.NotEqual(t, "email", e.Field)
	}
	assert.Len(t, row.Errors, 2, "name and age errors survive untouched")
	assert.False(t, row.IsValid)
}

func TestReprocessCellIsIdempotent(t *testing.T) {
	proc := newProcessor(contactSheet(), contactMappings())
	row := proc.ProcessRow(map[string]any{"Full Name": "a", "Age": "nope"}, 0)

	assert.NoError(t, proc.ReprocessCell(&row, "age", "nope"))
	first := len(row.Errors)
	assert.NoError(t, proc.ReprocessCell(&row, "age", "nope"))
	assert.Len(t, row.Errors, first, "re-editing the same bad value must not stack errors")
}

func TestReprocessCellUnknownField(t *testing.T) {
	proc := newProcessor(contactSheet(), contactMappings())
	row := proc.ProcessRow(map[string]any{"Full Name": "a"}, 0)

	assert.Error(t, proc.ReprocessCell(&row, "bogus", "v"))
}

func TestReprocessCellDoesNotRerunUniqueness(t *testing.T) {
	proc := newProcessor(contactSheet(), contactMappings())

	rows := []domain.DataRow{
		proc.ProcessRow(map[string]any{"Full Name": "a", "E-mail": "dup@x.co"}, 0),
		proc.ProcessRow(map[string]any{"Full Name": "b", "E-mail": "dup@x.co"}, 1),
	}
	proc.ApplyUniqueness(rows)
	assert.False(t, rows[0].IsValid)

	// Fixing the duplicate clears the edited row, but its former partner
	// stays flagged until the next full pass.
	assert.NoError(t, proc.ReprocessCell(&rows[1], "email", "new@x.co"))
	assert.True(t, rows[1].IsValid)
	assert.False(t, rows[0].IsValid)
}

func TestCollectErrors(t *testing.T) {
	proc := newProcessor(contactSheet(), contactMappings())
	rows := []domain.DataRow{
		proc.ProcessRow(map[string]any{"Full Name": ""}, 0),
		proc.ProcessRow(map[string]any{"Full Name": "ok"}, 1),
		proc.ProcessRow(map[string]any{"Full Name": "x", "Age": "bad"}, 2),
	}

	all := pipeline.CollectErrors(rows)
	assert.Len(t, all, 2)
	assert.Equal(t, 0, all[0].Row)
	assert.Equal(t, 2, all[1].Row)
}

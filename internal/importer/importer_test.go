package importer_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"tabflow/internal/domain"
	"tabflow/internal/importer"
)

func TestDetectFileType(t *testing.T) {
	for name, want := range map[string]domain.FileType{
		"data.csv":   domain.FileTypeCSV,
		"DATA.CSV":   domain.FileTypeCSV,
		"data.tsv":   domain.FileTypeCSV,
		"data.txt":   domain.FileTypeCSV,
		"book.xlsx":  domain.FileTypeXLSX,
		"legacy.xls": domain.FileTypeXLSX,
	} {
		got, err := importer.DetectFileType(name)
		assert.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := importer.DetectFileType("image.png")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
	_, err = importer.DetectFileType("noextension")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

func TestParseCSV(t *testing.T) {
	in := "Name,Email\nJane, jane@x.co \nBob,bob@x.co\n"
	data, err := importer.ParseCSV(strings.NewReader(in), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Email"}, data.Headers)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "Jane", data.Rows[0]["Name"])
	assert.Equal(t, "jane@x.co", data.Rows[0]["Email"], "cells arrive trimmed")
}

func TestParseCSVStripsBOM(t *testing.T) {
	in := "\xEF\xBB\xBFName,Email\nJane,j@x.co\n"
	data, err := importer.ParseCSV(strings.NewReader(in), "")
	require.NoError(t, err)
	assert.Equal(t, "Name", data.Headers[0])
}

func TestParseCSVCustomDelimiter(t *testing.T) {
	in := "Name;Email\nJane;j@x.co\n"
	data, err := importer.ParseCSV(strings.NewReader(in), ";")
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Email"}, data.Headers)
	assert.Equal(t, "Jane", data.Rows[0]["Name"])
}

func TestParseCSVHeaderOnlyIsEmpty(t *testing.T) {
	_, err := importer.ParseCSV(strings.NewReader("Name,Email\n"), "")
	assert.ErrorIs(t, err, domain.ErrEmptyFile)
}

func TestParseCSVShortRowsOmitTrailingKeys(t *testing.T) {
	in := "Name,Email\nJane\n"
	data, err := importer.ParseCSV(strings.NewReader(in), "")
	require.NoError(t, err)

	_, present := data.Rows[0]["Email"]
	assert.False(t, present)
	assert.Equal(t, "Jane", data.Rows[0]["Name"])
}

func TestDedupeHeaders(t *testing.T) {
	got := importer.DedupeHeaders([]string{"Name", "Name", "Name", "Name_2"})
	assert.Equal(t, []string{"Name", "Name_2", "Name_3", "Name_2_2"}, got)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheetName := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &[]any{"Name", "Email"}))
	require.NoError(t, f.SetSheetRow(sheetName, "A2", &[]any{"Jane", "j@x.co"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	data, err := importer.ParseXLSX(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Email"}, data.Headers)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "Jane", data.Rows[0]["Name"])
}

func TestParseDispatch(t *testing.T) {
	data, err := importer.Parse(domain.FileTypeCSV, strings.NewReader("A\n1\n"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, data.Headers)

	_, err = importer.Parse(domain.FileType("pdf"), strings.NewReader(""), "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

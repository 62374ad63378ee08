package importer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"tabflow/internal/domain"
)

// ParseXLSX decodes the first worksheet of an XLSX workbook.
func ParseXLSX(r io.Reader) (*domain.ImportedData, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.ErrEmptyFile
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, domain.ErrEmptyFile
	}

	return buildData(records[0], records[1:])
}

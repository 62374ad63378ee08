package importer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"

	"tabflow/internal/domain"
)

// utf8BOM is stripped when present so the first header survives Excel's CSV
// exports.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV decodes a CSV stream. delimiter is a single-character field
// separator; empty means comma.
func ParseCSV(r io.Reader, delimiter string) (*domain.ImportedData, error) {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(utf8BOM)); err == nil &&
		lead[0] == utf8BOM[0] && lead[1] == utf8BOM[1] && lead[2] == utf8BOM[2] {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if delimiter != "" {
		runes := []rune(delimiter)
		reader.Comma = runes[0]
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decoding csv: %w", err)
	}
	if len(records) == 0 {
		return nil, domain.ErrEmptyFile
	}

	return buildData(records[0], records[1:])
}

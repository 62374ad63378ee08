// Package importer decodes uploaded CSV and XLSX files into the row/header
// form the processing pipeline consumes. Headers are de-duplicated and cell
// values arrive whitespace-trimmed.
package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"tabflow/internal/domain"
)

// DetectFileType resolves a FileType from a filename extension.
func DetectFileType(filename string) (domain.FileType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	fileType, ok := domain.AllowedExtensions[ext]
	if !ok {
		return "", domain.ErrUnsupportedFileType
	}
	return fileType, nil
}

// Parse decodes a file of the given type. delimiter applies to CSV only; an
// empty delimiter means comma.
func Parse(fileType domain.FileType, r io.Reader, delimiter string) (*domain.ImportedData, error) {
	switch fileType {
	case domain.FileTypeCSV:
		return ParseCSV(r, delimiter)
	case domain.FileTypeXLSX:
		return ParseXLSX(r)
	default:
		return nil, domain.ErrUnsupportedFileType
	}
}

// buildData assembles ImportedData from a header record and raw value rows,
// de-duplicating headers and trimming every cell. Rows shorter than the
// header list simply omit the trailing keys.
func buildData(header []string, records [][]string) (*domain.ImportedData, error) {
	if len(records) == 0 {
		return nil, domain.ErrEmptyFile
	}

	headers := DedupeHeaders(header)
	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(headers))
		for i, h := range headers {
			if i >= len(record) {
				break
			}
			row[h] = strings.TrimSpace(record[i])
		}
		rows = append(rows, row)
	}

	return &domain.ImportedData{Headers: headers, Rows: rows}, nil
}

// DedupeHeaders trims headers and renames collisions by suffixing _2, _3, …
// in order of appearance. A generated name that itself collides keeps
// incrementing until free.
func DedupeHeaders(header []string) []string {
	used := make(map[string]bool, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if used[name] {
			n := 2
			for used[fmt.Sprintf("%s_%d", name, n)] {
				n++
			}
			name = fmt.Sprintf("%s_%d", name, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

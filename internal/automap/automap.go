// Package automap proposes an initial header→field assignment for an imported
// file by fuzzy-matching column headers against the sheet schema.
package automap

import (
	"sort"

	"tabflow/internal/domain"
)

// DefaultThreshold is the minimum similarity a candidate pair must exceed
// (strictly) to qualify for assignment.
const DefaultThreshold = 0.7

type candidate struct {
	header string
	field  string
	score  float64
}

// Map assigns imported headers to target field keys. Every header gets an
// entry in the result; headers with no qualifying field map to "".
//
// Candidates are ranked globally by score and assigned greedily, one source
// per target, so that two headers cannot both claim the same field just
// because of their column order. A field's score for a header is the greater
// of the header's similarity to the field label and to the field key; only
// scores strictly above threshold qualify. Ties keep the earlier header
// because the sort is stable over header order.
func Map(headers []string, fields []domain.FieldConfig, threshold float64) map[string]string {
	result := make(map[string]string, len(headers))
	for _, h := range headers {
		result[h] = ""
	}

	candidates := make([]candidate, 0, len(headers))
	for _, header := range headers {
		for i := range fields {
			score := Similarity(header, fields[i].Label)
			if keyScore := Similarity(header, fields[i].Key); keyScore > score {
				score = keyScore
			}
			if score > threshold {
				candidates = append(candidates, candidate{header: header, field: fields[i].Key, score: score})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	claimedFields := make(map[string]bool, len(fields))
	assignedHeaders := make(map[string]bool, len(headers))
	for _, c := range candidates {
		if claimedFields[c.field] || assignedHeaders[c.header] {
			continue
		}
		result[c.header] = c.field
		claimedFields[c.field] = true
		assignedHeaders[c.header] = true
	}

	return result
}

// Mappings runs Map and returns the assignment as a canonical mapping list
// with per-pair confidence scores, ordered by header position.
func Mappings(headers []string, fields []domain.FieldConfig, threshold float64) []domain.FieldMapping {
	flat := Map(headers, fields, threshold)

	mappings := make([]domain.FieldMapping, 0, len(headers))
	for _, header := range headers {
		target := flat[header]
		if target == "" {
			continue
		}
		var field *domain.FieldConfig
		for i := range fields {
			if fields[i].Key == target {
				field = &fields[i]
				break
			}
		}
		score := Similarity(header, field.Label)
		if keyScore := Similarity(header, field.Key); keyScore > score {
			score = keyScore
		}
		mappings = append(mappings, domain.FieldMapping{
			Source:     header,
			Target:     target,
			Transform:  field.DefaultTransform,
			Confidence: score,
		})
	}
	return mappings
}

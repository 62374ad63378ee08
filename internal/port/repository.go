package port

import (
	"context"

	"tabflow/internal/domain"
)

// SavedMappingRepository persists last-used field mappings per
// (namespace, sheet slug). Reads and writes are opportunistic: a missing row
// or a schema-signature mismatch is a safe no-op for callers.
type SavedMappingRepository interface {
	Get(ctx context.Context, namespace, sheetSlug string) (*domain.SavedMapping, error)
	Upsert(ctx context.Context, m *domain.SavedMapping) error
	Delete(ctx context.Context, namespace, sheetSlug string) error
}

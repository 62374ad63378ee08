package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tabflow/internal/domain"
	"tabflow/internal/port"
)

type savedMappingRepo struct {
	db *sqlx.DB
}

// NewSavedMappingRepo creates a new PostgreSQL-backed SavedMappingRepository.
func NewSavedMappingRepo(db *sqlx.DB) port.SavedMappingRepository {
	return &savedMappingRepo{db: db}
}

func (r *savedMappingRepo) Get(ctx context.Context, namespace, sheetSlug string) (*domain.SavedMapping, error) {
	var m domain.SavedMapping
	err := r.db.GetContext(ctx, &m,
		"SELECT * FROM saved_mappings WHERE namespace = $1 AND sheet_slug = $2", namespace, sheetSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMappingNotFound
		}
		return nil, fmt.Errorf("savedMappingRepo.Get: %w", err)
	}
	return &m, nil
}

func (r *savedMappingRepo) Upsert(ctx context.Context, m *domain.SavedMapping) error {
	now := time.Now().UTC()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `INSERT INTO saved_mappings
		(id, namespace, sheet_slug, schema_signature, mappings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (namespace, sheet_slug) DO UPDATE SET
			schema_signature = EXCLUDED.schema_signature,
			mappings = EXCLUDED.mappings,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.Namespace, m.SheetSlug, m.SchemaSignature, m.Mappings, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("savedMappingRepo.Upsert: %w", err)
	}
	return nil
}

func (r *savedMappingRepo) Delete(ctx context.Context, namespace, sheetSlug string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM saved_mappings WHERE namespace = $1 AND sheet_slug = $2", namespace, sheetSlug)
	if err != nil {
		return fmt.Errorf("savedMappingRepo.Delete: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrMappingNotFound
	}
	return nil
}

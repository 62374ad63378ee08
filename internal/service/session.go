package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tabflow/internal/domain"
	"tabflow/internal/mapping"
	"tabflow/internal/pipeline"
)

// session is the in-memory state of one import. Everything mutable is guarded
// by mu; the snapshot-consumer goroutine of the active processing run writes
// rows and progress under the same lock the API reads them under.
type session struct {
	mu sync.Mutex

	id        uuid.UUID
	namespace string
	sheet     *domain.SheetConfig
	createdAt time.Time

	// Local-path state. data and controller are nil for offloaded sessions.
	data       *domain.ImportedData
	controller *mapping.Controller
	engine     *pipeline.Engine

	// processor belongs to the most recently started run. Snapshots from an
	// older, superseded run are dropped by comparing against it.
	processor *pipeline.Processor

	status   domain.SessionStatus
	failure  string
	progress float64
	rows     []domain.DataRow
	errors   []domain.CellError

	// deleted holds row IDs removed during review. A full reprocess after a
	// mapping change regenerates every row, so deletions are re-applied to
	// each run's output rather than stored in the raw data.
	deleted map[string]bool

	offloaded  bool
	lastAccess time.Time
}

func (s *session) touch() {
	s.lastAccess = time.Now()
}

// rowByID finds a row in the current output by its stable identifier.
func (s *session) rowByID(rowID string) (*domain.DataRow, bool) {
	for i := range s.rows {
		if s.rows[i].ID == rowID {
			return &s.rows[i], true
		}
	}
	return nil, false
}

// applyDeletions filters removed rows out of a run's output. Row IDs are
// stable across runs, so the filter survives reprocessing.
func applyDeletions(rows []domain.DataRow, deleted map[string]bool) []domain.DataRow {
	if len(deleted) == 0 {
		return rows
	}
	kept := make([]domain.DataRow, 0, len(rows))
	for i := range rows {
		if !deleted[rows[i].ID] {
			kept = append(kept, rows[i])
		}
	}
	return kept
}

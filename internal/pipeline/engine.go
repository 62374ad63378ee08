package pipeline

import (
	"context"
	"sync/atomic"

	"tabflow/internal/domain"
)

// DefaultBatchSize bounds how many rows are processed between yield points.
const DefaultBatchSize = 2000

// Snapshot is one published state of an in-flight processing run. Non-final
// snapshots carry a strict prefix of the dataset in original order; the final
// snapshot carries every row, the flattened error list, and Progress 1.
type Snapshot struct {
	Rows     []domain.DataRow
	Errors   []domain.CellError
	Progress float64
	Done     bool
}

// Engine drives a Processor over a dataset in batches, yielding between
// batches so one run never monopolizes the caller. Runs are supersedable:
// each run captures the engine's generation counter and aborts silently at
// the next boundary once a newer run (or an explicit Supersede) has bumped it.
type Engine struct {
	generation atomic.Int64
	batchSize  int
}

// NewEngine creates an Engine. A batchSize of 0 or less uses DefaultBatchSize.
func NewEngine(batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{batchSize: batchSize}
}

// Supersede invalidates any in-flight run without starting a new one. The
// abandoned run's partial output must not be trusted.
func (e *Engine) Supersede() {
	e.generation.Add(1)
}

// Process starts a run over rows and returns its snapshot channel. The
// channel receives one snapshot per completed batch and a final Done snapshot,
// then closes. A superseded or context-canceled run closes the channel early
// without a Done snapshot; supersession is not an error.
//
// The generation is checked per row and per batch, so cancellation takes
// effect at the next boundary rather than instantly, and never mid-row.
func (e *Engine) Process(ctx context.Context, proc *Processor, rows []map[string]any) <-chan Snapshot {
	gen := e.generation.Add(1)
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)

		processed := make([]domain.DataRow, 0, len(rows))
		total := len(rows)

		for start := 0; start < total; start += e.batchSize {
			end := start + e.batchSize
			if end > total {
				end = total
			}
			for i := start; i < end; i++ {
				if e.generation.Load() != gen {
					return
				}
				processed = append(processed, proc.ProcessRow(rows[i], i))
			}

			if e.generation.Load() != gen || ctx.Err() != nil {
				return
			}
			if end < total {
				snapshot := make([]domain.DataRow, end)
				copy(snapshot, processed)
				select {
				case out <- Snapshot{Rows: snapshot, Progress: float64(end) / float64(total)}:
				case <-ctx.Done():
					return
				}
			}
		}

		if e.generation.Load() != gen || ctx.Err() != nil {
			return
		}
		proc.ApplyUniqueness(processed)
		if e.generation.Load() != gen {
			return
		}
		select {
		case out <- Snapshot{Rows: processed, Errors: CollectErrors(processed), Progress: 1, Done: true}:
		case <-ctx.Done():
		}
	}()

	return out
}

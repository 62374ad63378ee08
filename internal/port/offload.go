package port

import (
	"context"

	"tabflow/internal/domain"
)

// OffloadStartRequest asks the remote processor to run the pipeline over a
// previously uploaded object.
type OffloadStartRequest struct {
	UploadKey string              `json:"upload_key"`
	Namespace string              `json:"namespace"`
	Sheet     *domain.SheetConfig `json:"sheet"`
}

// OffloadPollResult is one poll response from the remote processor.
type OffloadPollResult struct {
	Done   bool               `json:"done"`
	Error  string             `json:"error,omitempty"`
	Rows   []domain.DataRow   `json:"rows,omitempty"`
	Errors []domain.CellError `json:"errors,omitempty"`
}

// OffloadClient is the three-call protocol against a remote processing
// service for files too large to process locally. The local pipeline is
// bypassed entirely; the remote result is passed through as-is.
type OffloadClient interface {
	StartProcessing(ctx context.Context, req OffloadStartRequest) (jobID string, err error)
	PollResult(ctx context.Context, jobID string) (*OffloadPollResult, error)
	// WaitForResult polls until the job finishes, backing off exponentially
	// with jitter, bounded by the client's wall-clock timeout.
	WaitForResult(ctx context.Context, jobID string) (*OffloadPollResult, error)
}

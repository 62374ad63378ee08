package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"tabflow/internal/automap"
	"tabflow/internal/config"
	"tabflow/internal/domain"
	"tabflow/internal/importer"
	"tabflow/internal/mapping"
	"tabflow/internal/pipeline"
	"tabflow/internal/port"
	"tabflow/internal/transform"
	"tabflow/internal/validator"
)

// CreateSessionInput is the DTO for starting an import session. Exactly one of
// File or UploadKey must be set: File carries an upload received directly,
// UploadKey references an object already placed in storage via a presigned URL.
type CreateSessionInput struct {
	Namespace string
	Sheet     *domain.SheetConfig
	FileName  string
	File      io.Reader
	FileSize  int64
	Delimiter string
	UploadKey string
}

// EditCellInput is the DTO for editing a single cell during review.
type EditCellInput struct {
	SessionID uuid.UUID
	RowID     string
	FieldKey  string
	Value     any
}

// UploadURLInput is the DTO for requesting a presigned upload URL on the
// large-file path.
type UploadURLInput struct {
	FileName    string
	ContentType string
}

// UploadURLResult carries a presigned PUT target for a browser-direct upload.
type UploadURLResult struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	Method    string `json:"method"`
	ExpiresIn int64  `json:"expires_in"`
}

// SessionView is the API-facing summary of a session's current state.
type SessionView struct {
	ID           uuid.UUID             `json:"id"`
	Status       domain.SessionStatus  `json:"status"`
	Progress     float64               `json:"progress"`
	Failure      string                `json:"failure,omitempty"`
	SheetSlug    string                `json:"sheet_slug"`
	Headers      []string              `json:"headers,omitempty"`
	Mappings     []domain.FieldMapping `json:"mappings"`
	FlatMappings map[string]string     `json:"flat_mappings,omitempty"`
	RowCount     int                   `json:"row_count"`
	ValidRows    int                   `json:"valid_rows"`
	InvalidRows  int                   `json:"invalid_rows"`
	ErrorCount   int                   `json:"error_count"`
	Offloaded    bool                  `json:"offloaded"`
	CreatedAt    time.Time             `json:"created_at"`
}

// SubmitResult is the final dataset handed back to the host on submit.
type SubmitResult struct {
	Rows        []domain.DataRow   `json:"rows"`
	Errors      []domain.CellError `json:"errors"`
	ValidRows   int                `json:"valid_rows"`
	InvalidRows int                `json:"invalid_rows"`
}

// ImportService defines the import session contract: upload, automatic
// mapping, chunked processing, review edits, and final submission.
type ImportService interface {
	CreateSession(ctx context.Context, input *CreateSessionInput) (*SessionView, error)
	GetSession(ctx context.Context, id uuid.UUID) (*SessionView, error)
	ListRows(ctx context.Context, id uuid.UUID, filter string, offset, limit int) ([]domain.DataRow, int, error)
	SetMapping(ctx context.Context, id uuid.UUID, source, target string) (*SessionView, error)
	SetFieldMappings(ctx context.Context, id uuid.UUID, list []domain.FieldMapping) (*SessionView, error)
	EditCell(ctx context.Context, input *EditCellInput) (*domain.DataRow, error)
	DeleteRow(ctx context.Context, id uuid.UUID, rowID string) error
	Submit(ctx context.Context, id uuid.UUID) (*SubmitResult, error)
	GetUploadURL(ctx context.Context, input *UploadURLInput) (*UploadURLResult, error)
	DeleteSavedMapping(ctx context.Context, namespace, sheetSlug string) error
	EvictIdleSessions(idleFor time.Duration) int
}

type importService struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session

	transforms  transform.Registry
	validators  *validator.Registry
	mappingRepo port.SavedMappingRepository
	storage     port.ObjectStorage
	offload     port.OffloadClient

	batchSize        int
	maxFileBytes     int64
	offloadThreshold int64
	bucket           string
	presignExpiry    int64
}

// NewImportService creates a new ImportService implementation. mappingRepo,
// storage, and offload may each be nil; the corresponding features degrade to
// safe no-ops.
func NewImportService(
	transforms transform.Registry,
	validators *validator.Registry,
	mappingRepo port.SavedMappingRepository,
	storage port.ObjectStorage,
	offloadClient port.OffloadClient,
	processingCfg *config.ProcessingConfig,
	s3Cfg *config.S3Config,
) ImportService {
	return &importService{
		sessions:         make(map[uuid.UUID]*session),
		transforms:       transforms,
		validators:       validators,
		mappingRepo:      mappingRepo,
		storage:          storage,
		offload:          offloadClient,
		batchSize:        processingCfg.BatchSize,
		maxFileBytes:     processingCfg.MaxFileSizeMB << 20,
		offloadThreshold: processingCfg.OffloadThresholdMB << 20,
		bucket:           s3Cfg.Bucket,
		presignExpiry:    s3Cfg.PresignExpiry,
	}
}

func (s *importService) CreateSession(ctx context.Context, input *CreateSessionInput) (*SessionView, error) {
	if input.Sheet == nil || len(input.Sheet.Fields) == 0 {
		return nil, domain.ErrSheetNotFound
	}

	if input.UploadKey != "" {
		return s.createRemoteSession(ctx, input, input.UploadKey)
	}

	if s.maxFileBytes > 0 && input.FileSize > s.maxFileBytes {
		return nil, domain.ErrFileTooLarge
	}

	// Large uploads are handed to the remote processor when one is
	// configured; otherwise they run through the local pipeline like
	// everything else.
	if s.offload != nil && s.storage != nil && s.offloadThreshold > 0 && input.FileSize > s.offloadThreshold {
		key := fmt.Sprintf("uploads/%s/%s", uuid.New(), input.FileName)
		_, err := s.storage.Upload(ctx, port.UploadInput{
			Bucket:      s.bucket,
			Key:         key,
			Body:        input.File,
			ContentType: contentTypeFor(input.FileName),
			Size:        input.FileSize,
		})
		if err != nil {
			return nil, fmt.Errorf("importService.CreateSession: archiving upload: %w", err)
		}
		return s.createRemoteSession(ctx, input, key)
	}

	return s.createLocalSession(ctx, input)
}

func (s *importService) createLocalSession(ctx context.Context, input *CreateSessionInput) (*SessionView, error) {
	fileType, err := importer.DetectFileType(input.FileName)
	if err != nil {
		return nil, err
	}
	data, err := importer.Parse(fileType, input.File, input.Delimiter)
	if err != nil {
		return nil, err
	}

	sess := &session{
		id:         uuid.New(),
		namespace:  input.Namespace,
		sheet:      input.Sheet,
		data:       data,
		engine:     pipeline.NewEngine(s.batchSize),
		status:     domain.SessionStatusProcessing,
		deleted:    make(map[string]bool),
		createdAt:  time.Now(),
		lastAccess: time.Now(),
	}

	seed := s.seedMappings(ctx, input.Sheet, input.Namespace, data.Headers)
	sess.controller = mapping.NewController(input.Sheet, data.Headers, seed, func() {
		s.startRun(sess)
	})

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	log.Printf("importService.CreateSession: session %s created (%d rows, sheet %q)",
		sess.id, len(data.Rows), input.Sheet.Slug)

	s.startRun(sess)
	return s.view(sess), nil
}

// seedMappings resolves the initial mapping list: an explicit mapping in the
// sheet config wins, then a saved mapping whose schema signature still
// matches, then auto-mapping over the file's headers.
func (s *importService) seedMappings(ctx context.Context, sheet *domain.SheetConfig, namespace string, headers []string) []domain.FieldMapping {
	if sheet.Mappings != nil && len(sheet.Mappings.FieldMappings) > 0 {
		return sheet.Mappings.FieldMappings
	}

	if s.mappingRepo != nil {
		saved, err := s.mappingRepo.Get(ctx, namespace, sheet.Slug)
		if err == nil && saved.SchemaSignature == sheet.SchemaSignature() {
			var pm domain.PipelineMappings
			if jsonErr := json.Unmarshal(saved.Mappings, &pm); jsonErr == nil {
				return pm.FieldMappings
			}
		} else if err != nil && !errors.Is(err, domain.ErrMappingNotFound) {
			log.Printf("importService.seedMappings: loading saved mapping: %v", err)
		}
	}

	return automap.Mappings(headers, sheet.Fields, automap.DefaultThreshold)
}

// startRun supersedes any in-flight processing run and starts a new one over
// the session's raw rows with the controller's current mappings.
func (s *importService) startRun(sess *session) {
	sess.mu.Lock()
	proc := pipeline.NewProcessor(sess.sheet, sess.controller.Mappings(), s.transforms, s.validators)
	sess.processor = proc
	sess.status = domain.SessionStatusProcessing
	sess.progress = 0
	sess.failure = ""
	ch := sess.engine.Process(context.Background(), proc, sess.data.Rows)
	sess.mu.Unlock()

	go func() {
		for snap := range ch {
			sess.mu.Lock()
			if sess.processor != proc {
				// A newer run owns the session now; this snapshot is stale.
				sess.mu.Unlock()
				continue
			}
			sess.rows = applyDeletions(snap.Rows, sess.deleted)
			sess.progress = snap.Progress
			if snap.Done {
				sess.errors = pipeline.CollectErrors(sess.rows)
				sess.status = domain.SessionStatusReady
			}
			sess.mu.Unlock()
		}
	}()
}

func (s *importService) createRemoteSession(ctx context.Context, input *CreateSessionInput, uploadKey string) (*SessionView, error) {
	if s.offload == nil {
		return nil, domain.ErrOffloadUnavailable
	}

	sess := &session{
		id:        uuid.New(),
		namespace: input.Namespace,
		sheet:     input.Sheet,
		// ReprocessCell only needs the sheet schema, so review edits work on
		// remotely processed rows too.
		processor:  pipeline.NewProcessor(input.Sheet, nil, s.transforms, s.validators),
		status:     domain.SessionStatusProcessing,
		deleted:    make(map[string]bool),
		offloaded:  true,
		createdAt:  time.Now(),
		lastAccess: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	jobID, err := s.offload.StartProcessing(ctx, port.OffloadStartRequest{
		UploadKey: uploadKey,
		Namespace: input.Namespace,
		Sheet:     input.Sheet,
	})
	if err != nil {
		s.failSession(sess, err)
		return nil, err
	}

	log.Printf("importService.CreateSession: session %s offloaded as job %s", sess.id, jobID)

	go func() {
		result, waitErr := s.offload.WaitForResult(context.Background(), jobID)
		s.cleanupUpload(uploadKey)
		if waitErr != nil {
			s.failSession(sess, waitErr)
			return
		}
		sess.mu.Lock()
		sess.rows = result.Rows
		if result.Errors != nil {
			sess.errors = result.Errors
		} else {
			sess.errors = pipeline.CollectErrors(result.Rows)
		}
		sess.progress = 1
		sess.status = domain.SessionStatusReady
		sess.mu.Unlock()
	}()

	return s.view(sess), nil
}

// cleanupUpload removes the staged object once the remote processor is done
// with it, successfully or not.
func (s *importService) cleanupUpload(key string) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Delete(context.Background(), s.bucket, key); err != nil {
		log.Printf("importService.cleanupUpload: removing %s: %v", key, err)
	}
}

func (s *importService) failSession(sess *session, err error) {
	log.Printf("importService: session %s failed: %v", sess.id, err)
	sess.mu.Lock()
	sess.status = domain.SessionStatusFailed
	sess.failure = err.Error()
	sess.mu.Unlock()
}

func (s *importService) GetSession(ctx context.Context, id uuid.UUID) (*SessionView, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// ListRows returns a page of processed rows. filter may be "valid", "invalid",
// or empty for all rows; the returned total counts the filtered set.
func (s *importService) ListRows(ctx context.Context, id uuid.UUID, filter string, offset, limit int) ([]domain.DataRow, int, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, 0, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	var filtered []domain.DataRow
	switch filter {
	case "":
		filtered = sess.rows
	case "valid":
		for i := range sess.rows {
			if sess.rows[i].IsValid {
				filtered = append(filtered, sess.rows[i])
			}
		}
	case "invalid":
		for i := range sess.rows {
			if !sess.rows[i].IsValid {
				filtered = append(filtered, sess.rows[i])
			}
		}
	default:
		return nil, 0, fmt.Errorf("unknown row filter %q", filter)
	}

	total := len(filtered)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	page := make([]domain.DataRow, end-offset)
	copy(page, filtered[offset:end])
	return page, total, nil
}

func (s *importService) SetMapping(ctx context.Context, id uuid.UUID, source, target string) (*SessionView, error) {
	sess, err := s.mutableLocalSession(id)
	if err != nil {
		return nil, err
	}
	sess.controller.SetMapping(source, target)
	return s.view(sess), nil
}

func (s *importService) SetFieldMappings(ctx context.Context, id uuid.UUID, list []domain.FieldMapping) (*SessionView, error) {
	sess, err := s.mutableLocalSession(id)
	if err != nil {
		return nil, err
	}
	sess.controller.SetFieldMappings(list)
	return s.view(sess), nil
}

// mutableLocalSession fetches a session that may still accept mapping changes.
// Mapping mutations are allowed mid-processing (they supersede the run), but
// not after submit, and never on offloaded sessions.
func (s *importService) mutableLocalSession(id uuid.UUID) (*session, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.offloaded {
		return nil, domain.ErrRemoteSession
	}
	if sess.status == domain.SessionStatusSubmitted {
		return nil, domain.ErrSessionSubmitted
	}
	return sess, nil
}

func (s *importService) EditCell(ctx context.Context, input *EditCellInput) (*domain.DataRow, error) {
	sess, err := s.get(input.SessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := reviewable(sess); err != nil {
		return nil, err
	}
	row, ok := sess.rowByID(input.RowID)
	if !ok {
		return nil, domain.ErrRowNotFound
	}
	if err := sess.processor.ReprocessCell(row, input.FieldKey, input.Value); err != nil {
		return nil, fmt.Errorf("importService.EditCell: %w", err)
	}
	sess.errors = pipeline.CollectErrors(sess.rows)

	out := *row
	return &out, nil
}

func (s *importService) DeleteRow(ctx context.Context, id uuid.UUID, rowID string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := reviewable(sess); err != nil {
		return err
	}
	if _, ok := sess.rowByID(rowID); !ok {
		return domain.ErrRowNotFound
	}

	sess.deleted[rowID] = true
	sess.rows = applyDeletions(sess.rows, sess.deleted)
	// Blank the raw row too so a later full reprocess neither resurrects it
	// nor counts its values in the uniqueness pass.
	if idx, ok := domain.RowIndexFromID(rowID); ok && sess.data != nil && idx < len(sess.data.Rows) {
		sess.data.Rows[idx] = nil
	}
	sess.errors = pipeline.CollectErrors(sess.rows)
	return nil
}

func (s *importService) Submit(ctx context.Context, id uuid.UUID) (*SubmitResult, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := reviewable(sess); err != nil {
		return nil, err
	}
	sess.status = domain.SessionStatusSubmitted

	// Persisting the last-used mapping is best effort: a storage failure must
	// never block the host from receiving its data.
	if s.mappingRepo != nil && sess.controller != nil {
		raw, marshalErr := json.Marshal(domain.PipelineMappings{FieldMappings: sess.controller.Mappings()})
		if marshalErr == nil {
			upsertErr := s.mappingRepo.Upsert(ctx, &domain.SavedMapping{
				Namespace:       sess.namespace,
				SheetSlug:       sess.sheet.Slug,
				SchemaSignature: sess.sheet.SchemaSignature(),
				Mappings:        raw,
			})
			if upsertErr != nil {
				log.Printf("importService.Submit: saving mapping for %s/%s: %v",
					sess.namespace, sess.sheet.Slug, upsertErr)
			}
		}
	}

	result := &SubmitResult{
		Rows:   make([]domain.DataRow, len(sess.rows)),
		Errors: sess.errors,
	}
	copy(result.Rows, sess.rows)
	for i := range sess.rows {
		if sess.rows[i].IsValid {
			result.ValidRows++
		} else {
			result.InvalidRows++
		}
	}
	return result, nil
}

// GetUploadURL presigns a PUT target so large files can be uploaded to
// storage directly, skipping this server's request body limits.
func (s *importService) GetUploadURL(ctx context.Context, input *UploadURLInput) (*UploadURLResult, error) {
	if s.storage == nil || s.offload == nil {
		return nil, domain.ErrOffloadUnavailable
	}
	if _, err := importer.DetectFileType(input.FileName); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("uploads/%s/%s", uuid.New(), input.FileName)
	contentType := input.ContentType
	if contentType == "" {
		contentType = contentTypeFor(input.FileName)
	}
	url, err := s.storage.GetPresignedPutURL(ctx, s.bucket, key, contentType, s.presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("importService.GetUploadURL: %w", err)
	}
	return &UploadURLResult{
		Key:       key,
		URL:       url,
		Method:    "PUT",
		ExpiresIn: s.presignExpiry,
	}, nil
}

// DeleteSavedMapping discards the persisted last-used mapping for a sheet, so
// the next import of that schema starts from auto-mapping again.
func (s *importService) DeleteSavedMapping(ctx context.Context, namespace, sheetSlug string) error {
	if s.mappingRepo == nil {
		return domain.ErrMappingNotFound
	}
	return s.mappingRepo.Delete(ctx, namespace, sheetSlug)
}

// EvictIdleSessions drops sessions not touched within idleFor and returns how
// many were removed. In-flight runs of evicted sessions abort at their next
// batch boundary.
func (s *importService) EvictIdleSessions(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastAccess.Before(cutoff)
		if idle && sess.engine != nil {
			sess.engine.Supersede()
		}
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (s *importService) get(id uuid.UUID) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	sess.mu.Lock()
	sess.touch()
	sess.mu.Unlock()
	return sess, nil
}

func (s *importService) view(sess *session) *SessionView {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	v := &SessionView{
		ID:        sess.id,
		Status:    sess.status,
		Progress:  sess.progress,
		Failure:   sess.failure,
		SheetSlug: sess.sheet.Slug,
		RowCount:  len(sess.rows),
		Offloaded: sess.offloaded,
		CreatedAt: sess.createdAt,
	}
	if sess.data != nil {
		v.Headers = sess.data.Headers
	}
	if sess.controller != nil {
		v.Mappings = sess.controller.Mappings()
		v.FlatMappings = sess.controller.Flat()
	}
	for i := range sess.rows {
		if sess.rows[i].IsValid {
			v.ValidRows++
		} else {
			v.InvalidRows++
		}
	}
	v.ErrorCount = len(sess.errors)
	return v
}

// reviewable reports whether a session accepts review operations right now.
// Callers hold the session lock.
func reviewable(sess *session) error {
	switch sess.status {
	case domain.SessionStatusReady:
		return nil
	case domain.SessionStatusSubmitted:
		return domain.ErrSessionSubmitted
	default:
		return domain.ErrSessionNotReady
	}
}

func contentTypeFor(filename string) string {
	fileType, err := importer.DetectFileType(filename)
	if err != nil {
		return "application/octet-stream"
	}
	switch fileType {
	case domain.FileTypeCSV:
		return "text/csv"
	case domain.FileTypeXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

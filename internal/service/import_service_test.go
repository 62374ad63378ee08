package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tabflow/internal/config"
	"tabflow/internal/domain"
	"tabflow/internal/port"
	"tabflow/internal/service"
	"tabflow/internal/transform"
	"tabflow/internal/validator"
	"tabflow/mocks"
)

const testCSV = "Name,Email,Age\njane doe,jane@x.co,41\nbob,bad-email,17\n,carl@x.co,30\n"

func contactSheet() *domain.SheetConfig {
	return &domain.SheetConfig{
		Name: "Contacts",
		Slug: "contacts",
		Fields: []domain.FieldConfig{
			{Key: "name", Label: "Name", Type: domain.FieldTypeString, Required: true, DefaultTransform: "capitalize"},
			{Key: "email", Label: "Email", Type: domain.FieldTypeEmail, Unique: true, DefaultTransform: "formatEmail"},
			{Key: "age", Label: "Age", Type: domain.FieldTypeNumber},
		},
	}
}

func processingCfg() *config.ProcessingConfig {
	return &config.ProcessingConfig{BatchSize: 2, MaxFileSizeMB: 100, OffloadThresholdMB: 10}
}

func s3Cfg() *config.S3Config {
	return &config.S3Config{Bucket: "test-bucket", PresignExpiry: 900}
}

func newService(repo port.SavedMappingRepository, storage port.ObjectStorage, offload port.OffloadClient) service.ImportService {
	return service.NewImportService(
		transform.NewRegistry(),
		validator.NewRegistry(),
		repo,
		storage,
		offload,
		processingCfg(),
		s3Cfg(),
	)
}

func createCSVSession(t *testing.T, svc service.ImportService, csv string) *service.SessionView {
	t.Helper()
	view, err := svc.CreateSession(context.Background(), &service.CreateSessionInput{
		Namespace: "acme",
		Sheet:     contactSheet(),
		FileName:  "contacts.csv",
		File:      strings.NewReader(csv),
		FileSize:  int64(len(csv)),
	})
	require.NoError(t, err)
	return view
}

func waitStatus(t *testing.T, svc service.ImportService, id uuid.UUID, status domain.SessionStatus) *service.SessionView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view, err := svc.GetSession(context.Background(), id)
		require.NoError(t, err)
		if view.Status == status {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached status %q", status)
	return nil
}

func TestCreateSessionProcessesWithAutoMapping(t *testing.T) {
	svc := newService(nil, nil, nil)
	created := createCSVSession(t, svc, testCSV)

	view := waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	assert.Equal(t, 1.0, view.Progress)
	assert.Equal(t, []string{"Name", "Email", "Age"}, view.Headers)
	assert.Equal(t, 3, view.RowCount)
	assert.Equal(t, 1, view.ValidRows)
	assert.Equal(t, 2, view.InvalidRows, "bad email and missing required name")
	assert.Equal(t, map[string]string{"Name": "name", "Email": "email", "Age": "age"}, view.FlatMappings)

	rows, total, err := svc.ListRows(context.Background(), view.ID, "", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "Jane Doe", rows[0].Data["name"], "default transform applied")
	assert.Equal(t, 41.0, rows[0].Data["age"])
}

func TestListRowsFilterAndPagination(t *testing.T) {
	svc := newService(nil, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	valid, total, err := svc.ListRows(context.Background(), created.ID, "valid", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, valid, 1)
	assert.Equal(t, "row-0", valid[0].ID)

	invalid, total, err := svc.ListRows(context.Background(), created.ID, "invalid", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, invalid, 2)

	page, total, err := svc.ListRows(context.Background(), created.ID, "", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "row-1", page[0].ID)

	_, _, err = svc.ListRows(context.Background(), created.ID, "bogus", 0, 10)
	assert.Error(t, err)
}

func TestGetSessionUnknownID(t *testing.T) {
	svc := newService(nil, nil, nil)
	_, err := svc.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCreateSessionRejectsOversizedFile(t *testing.T) {
	svc := service.NewImportService(
		transform.NewRegistry(), validator.NewRegistry(), nil, nil, nil,
		&config.ProcessingConfig{BatchSize: 10, MaxFileSizeMB: 1, OffloadThresholdMB: 10},
		s3Cfg(),
	)
	_, err := svc.CreateSession(context.Background(), &service.CreateSessionInput{
		Namespace: "acme",
		Sheet:     contactSheet(),
		FileName:  "big.csv",
		File:      strings.NewReader(testCSV),
		FileSize:  2 << 20,
	})
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)
}

func TestCreateSessionRejectsMissingSheet(t *testing.T) {
	svc := newService(nil, nil, nil)
	_, err := svc.CreateSession(context.Background(), &service.CreateSessionInput{
		Namespace: "acme",
		FileName:  "contacts.csv",
		File:      strings.NewReader(testCSV),
	})
	assert.ErrorIs(t, err, domain.ErrSheetNotFound)
}

func TestSetMappingTriggersReprocessing(t *testing.T) {
	svc := newService(nil, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	// Clearing the email assignment removes the field from processed rows.
	_, err := svc.SetMapping(context.Background(), created.ID, "Email", "")
	require.NoError(t, err)

	view := waitStatus(t, svc, created.ID, domain.SessionStatusReady)
	assert.Equal(t, "", view.FlatMappings["Email"])

	rows, _, err := svc.ListRows(context.Background(), view.ID, "", 0, 100)
	require.NoError(t, err)
	_, present := rows[0].Data["email"]
	assert.False(t, present)
}

func TestSeedFromSavedMapping(t *testing.T) {
	sheet := contactSheet()
	saved, _ := json.Marshal(domain.PipelineMappings{FieldMappings: []domain.FieldMapping{
		{Source: "Name", Target: "name"},
		// Deliberately different from what automap would produce.
		{Source: "Age", Target: "email"},
	}})

	repo := new(mocks.MockSavedMappingRepo)
	repo.On("Get", mock.Anything, "acme", "contacts").Return(&domain.SavedMapping{
		Namespace:       "acme",
		SheetSlug:       "contacts",
		SchemaSignature: sheet.SchemaSignature(),
		Mappings:        saved,
	}, nil)

	svc := newService(repo, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	view := waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	assert.Equal(t, "email", view.FlatMappings["Age"])
	assert.Equal(t, "", view.FlatMappings["Email"], "saved mapping wins over auto-mapping")
	repo.AssertExpectations(t)
}

func TestSeedIgnoresSavedMappingWithStaleSignature(t *testing.T) {
	repo := new(mocks.MockSavedMappingRepo)
	repo.On("Get", mock.Anything, "acme", "contacts").Return(&domain.SavedMapping{
		SchemaSignature: "some,old,schema",
		Mappings:        json.RawMessage(`{"field_mappings":[{"source":"Name","target":"email"}]}`),
	}, nil)

	svc := newService(repo, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	view := waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	// Falls back to auto-mapping.
	assert.Equal(t, "name", view.FlatMappings["Name"])
	assert.Equal(t, "email", view.FlatMappings["Email"])
}

func TestEditCellRevalidates(t *testing.T) {
	svc := newService(nil, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	row, err := svc.EditCell(context.Background(), &service.EditCellInput{
		SessionID: created.ID,
		RowID:     "row-1",
		FieldKey:  "email",
		Value:     "bob@x.co",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob@x.co", row.Data["email"])
	assert.True(t, row.IsValid)

	view, err := svc.GetSession(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ValidRows)
}

func TestEditCellUnknownRow(t *testing.T) {
	svc := newService(nil, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	_, err := svc.EditCell(context.Background(), &service.EditCellInput{
		SessionID: created.ID,
		RowID:     "row-99",
		FieldKey:  "email",
		Value:     "x@x.co",
	})
	assert.ErrorIs(t, err, domain.ErrRowNotFound)
}

func TestDeleteRowSurvivesReprocessing(t *testing.T) {
	svc := newService(nil, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	require.NoError(t, svc.DeleteRow(context.Background(), created.ID, "row-1"))

	rows, total, err := svc.ListRows(context.Background(), created.ID, "", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, r := range rows {
		assert.NotEqual(t, "row-1", r.ID)
	}

	// A mapping change reprocesses from the raw data; the deleted row must
	// not come back.
	_, err = svc.SetMapping(context.Background(), created.ID, "Age", "")
	require.NoError(t, err)
	view := waitStatus(t, svc, created.ID, domain.SessionStatusReady)
	assert.Equal(t, 2, view.RowCount)
}

func TestSubmitPersistsMappingAndLocksSession(t *testing.T) {
	repo := new(mocks.MockSavedMappingRepo)
	repo.On("Get", mock.Anything, "acme", "contacts").Return(nil, domain.ErrMappingNotFound)
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(m *domain.SavedMapping) bool {
		return m.Namespace == "acme" && m.SheetSlug == "contacts" &&
			m.SchemaSignature == contactSheet().SchemaSignature()
	})).Return(nil)

	svc := newService(repo, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	result, err := svc.Submit(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 3)
	assert.Equal(t, 1, result.ValidRows)
	assert.Equal(t, 2, result.InvalidRows)

	// Submitted sessions reject further mutation.
	_, err = svc.Submit(context.Background(), created.ID)
	assert.ErrorIs(t, err, domain.ErrSessionSubmitted)
	_, err = svc.SetMapping(context.Background(), created.ID, "Name", "")
	assert.ErrorIs(t, err, domain.ErrSessionSubmitted)
	_, err = svc.EditCell(context.Background(), &service.EditCellInput{
		SessionID: created.ID, RowID: "row-0", FieldKey: "name", Value: "x",
	})
	assert.ErrorIs(t, err, domain.ErrSessionSubmitted)

	repo.AssertExpectations(t)
}

func TestSubmitToleratesRepoFailure(t *testing.T) {
	repo := new(mocks.MockSavedMappingRepo)
	repo.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrMappingNotFound)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(assert.AnError)

	svc := newService(repo, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	_, err := svc.Submit(context.Background(), created.ID)
	assert.NoError(t, err, "a saved-mapping write failure must not block submission")
}

func TestDeleteSavedMapping(t *testing.T) {
	repo := new(mocks.MockSavedMappingRepo)
	repo.On("Delete", mock.Anything, "acme", "contacts").Return(nil)

	svc := newService(repo, nil, nil)
	require.NoError(t, svc.DeleteSavedMapping(context.Background(), "acme", "contacts"))
	repo.AssertExpectations(t)
}

func TestDeleteSavedMappingWithoutRepo(t *testing.T) {
	svc := newService(nil, nil, nil)
	err := svc.DeleteSavedMapping(context.Background(), "acme", "contacts")
	assert.ErrorIs(t, err, domain.ErrMappingNotFound)
}

func TestLargeFileOffloads(t *testing.T) {
	storage := new(mocks.MockObjectStorage)
	storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Bucket == "test-bucket" && strings.HasSuffix(in.Key, "/big.csv")
	})).Return(&port.UploadOutput{Location: "s3://test-bucket/big.csv"}, nil)
	// The staged object is removed once the remote processor is done with it.
	storage.On("Delete", mock.Anything, "test-bucket", mock.MatchedBy(func(key string) bool {
		return strings.HasSuffix(key, "/big.csv")
	})).Return(nil)

	offloadClient := new(mocks.MockOffloadClient)
	offloadClient.On("StartProcessing", mock.Anything, mock.MatchedBy(func(req port.OffloadStartRequest) bool {
		return req.Namespace == "acme" && req.UploadKey != ""
	})).Return("job-7", nil)
	offloadClient.On("WaitForResult", mock.Anything, "job-7").Return(&port.OffloadPollResult{
		Done: true,
		Rows: []domain.DataRow{
			{ID: "row-0", Data: map[string]any{"name": "Jane", "email": "jane@x.co"}, IsValid: true},
		},
	}, nil)

	svc := newService(nil, storage, offloadClient)
	view, err := svc.CreateSession(context.Background(), &service.CreateSessionInput{
		Namespace: "acme",
		Sheet:     contactSheet(),
		FileName:  "big.csv",
		File:      strings.NewReader("unused"),
		FileSize:  20 << 20,
	})
	require.NoError(t, err)
	assert.True(t, view.Offloaded)

	ready := waitStatus(t, svc, view.ID, domain.SessionStatusReady)
	assert.Equal(t, 1, ready.RowCount)

	// Remote rows are pass-through, but review edits still work.
	row, err := svc.EditCell(context.Background(), &service.EditCellInput{
		SessionID: view.ID, RowID: "row-0", FieldKey: "email", Value: "new@x.co",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@x.co", row.Data["email"])

	// Mapping changes are meaningless without local raw data.
	_, err = svc.SetMapping(context.Background(), view.ID, "Name", "name")
	assert.ErrorIs(t, err, domain.ErrRemoteSession)

	storage.AssertExpectations(t)
	offloadClient.AssertExpectations(t)
}

func TestCreateSessionFromUploadKey(t *testing.T) {
	offloadClient := new(mocks.MockOffloadClient)
	offloadClient.On("StartProcessing", mock.Anything, mock.MatchedBy(func(req port.OffloadStartRequest) bool {
		return req.UploadKey == "uploads/abc/data.csv"
	})).Return("job-1", nil)
	offloadClient.On("WaitForResult", mock.Anything, "job-1").Return(&port.OffloadPollResult{
		Done: true,
		Rows: []domain.DataRow{{ID: "row-0", IsValid: true}},
	}, nil)

	svc := newService(nil, nil, offloadClient)
	view, err := svc.CreateSession(context.Background(), &service.CreateSessionInput{
		Namespace: "acme",
		Sheet:     contactSheet(),
		FileName:  "data.csv",
		UploadKey: "uploads/abc/data.csv",
	})
	require.NoError(t, err)

	ready := waitStatus(t, svc, view.ID, domain.SessionStatusReady)
	assert.Equal(t, 1, ready.RowCount)
}

func TestCreateSessionUploadKeyWithoutOffload(t *testing.T) {
	svc := newService(nil, nil, nil)
	_, err := svc.CreateSession(context.Background(), &service.CreateSessionInput{
		Namespace: "acme",
		Sheet:     contactSheet(),
		FileName:  "data.csv",
		UploadKey: "uploads/abc/data.csv",
	})
	assert.ErrorIs(t, err, domain.ErrOffloadUnavailable)
}

func TestRemoteFailureMarksSessionFailed(t *testing.T) {
	offloadClient := new(mocks.MockOffloadClient)
	offloadClient.On("StartProcessing", mock.Anything, mock.Anything).Return("job-1", nil)
	offloadClient.On("WaitForResult", mock.Anything, "job-1").Return(nil, domain.ErrOffloadFailed)

	svc := newService(nil, nil, offloadClient)
	view, err := svc.CreateSession(context.Background(), &service.CreateSessionInput{
		Namespace: "acme",
		Sheet:     contactSheet(),
		FileName:  "data.csv",
		UploadKey: "uploads/abc/data.csv",
	})
	require.NoError(t, err)

	failed := waitStatus(t, svc, view.ID, domain.SessionStatusFailed)
	assert.NotEmpty(t, failed.Failure)
}

func TestGetUploadURL(t *testing.T) {
	storage := new(mocks.MockObjectStorage)
	storage.On("GetPresignedPutURL", mock.Anything, "test-bucket", mock.AnythingOfType("string"), "text/csv", int64(900)).
		Return("https://signed.example/put", nil)

	svc := newService(nil, storage, new(mocks.MockOffloadClient))
	result, err := svc.GetUploadURL(context.Background(), &service.UploadURLInput{FileName: "data.csv"})
	require.NoError(t, err)

	assert.Equal(t, "https://signed.example/put", result.URL)
	assert.Equal(t, "PUT", result.Method)
	assert.True(t, strings.HasPrefix(result.Key, "uploads/"))
	assert.True(t, strings.HasSuffix(result.Key, "/data.csv"))
}

func TestGetUploadURLRequiresOffloadStack(t *testing.T) {
	svc := newService(nil, nil, nil)
	_, err := svc.GetUploadURL(context.Background(), &service.UploadURLInput{FileName: "data.csv"})
	assert.ErrorIs(t, err, domain.ErrOffloadUnavailable)
}

func TestGetUploadURLRejectsUnsupportedTypes(t *testing.T) {
	svc := newService(nil, new(mocks.MockObjectStorage), new(mocks.MockOffloadClient))
	_, err := svc.GetUploadURL(context.Background(), &service.UploadURLInput{FileName: "image.png"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

func TestEvictIdleSessions(t *testing.T) {
	svc := newService(nil, nil, nil)
	created := createCSVSession(t, svc, testCSV)
	waitStatus(t, svc, created.ID, domain.SessionStatusReady)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, svc.EvictIdleSessions(time.Millisecond))

	_, err := svc.GetSession(context.Background(), created.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.Equal(t, 0, svc.EvictIdleSessions(time.Millisecond))
}

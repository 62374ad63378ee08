package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tabflow/internal/domain"
	"tabflow/internal/middleware"
	"tabflow/internal/service"
)

// ImportHandler handles import session endpoints.
type ImportHandler struct {
	importService service.ImportService
	maxFileBytes  int64
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(importService service.ImportService, maxFileSizeMB int64) *ImportHandler {
	return &ImportHandler{
		importService: importService,
		maxFileBytes:  maxFileSizeMB << 20,
	}
}

type createRemoteSessionRequest struct {
	UploadKey string              `json:"upload_key" binding:"required"`
	Sheet     *domain.SheetConfig `json:"sheet" binding:"required"`
}

// CreateSession handles POST /api/v1/sessions.
//
// Two request shapes are accepted: multipart/form-data with a "file" part and
// a "sheet" JSON field for direct uploads, or a JSON body referencing an
// object previously uploaded through a presigned URL.
func (h *ImportHandler) CreateSession(c *gin.Context) {
	namespace := middleware.GetNamespace(c)

	if c.ContentType() == "application/json" {
		var req createRemoteSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "upload_key and sheet are required")
			return
		}
		view, err := h.importService.CreateSession(c.Request.Context(), &service.CreateSessionInput{
			Namespace: namespace,
			Sheet:     req.Sheet,
			FileName:  req.UploadKey,
			UploadKey: req.UploadKey,
		})
		if err != nil {
			HandleError(c, err)
			return
		}
		RespondCreated(c, view)
		return
	}

	if h.maxFileBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileBytes)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	sheetJSON := c.PostForm("sheet")
	if sheetJSON == "" {
		RespondError(c, http.StatusBadRequest, "MISSING_SHEET", "sheet field is required")
		return
	}
	var sheet domain.SheetConfig
	if err := json.Unmarshal([]byte(sheetJSON), &sheet); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_SHEET", "sheet field is not valid JSON")
		return
	}

	view, err := h.importService.CreateSession(c.Request.Context(), &service.CreateSessionInput{
		Namespace: namespace,
		Sheet:     &sheet,
		FileName:  header.Filename,
		File:      file,
		FileSize:  header.Size,
		Delimiter: c.PostForm("delimiter"),
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondCreated(c, view)
}

// GetSession handles GET /api/v1/sessions/:id.
func (h *ImportHandler) GetSession(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	view, err := h.importService.GetSession(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, view)
}

// ListRows handles GET /api/v1/sessions/:id/rows with optional
// filter=valid|invalid and offset/limit pagination.
func (h *ImportHandler) ListRows(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}

	filter := c.Query("filter")
	if filter != "" && filter != "valid" && filter != "invalid" {
		RespondError(c, http.StatusBadRequest, "INVALID_FILTER", "filter must be valid or invalid")
		return
	}
	offset, limit := parsePagination(c)

	rows, total, err := h.importService.ListRows(c.Request.Context(), id, filter, offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, rows, PagMeta{Total: total, Offset: offset, Limit: limit})
}

type setMappingRequest struct {
	Source string `json:"source" binding:"required"`
	Target string `json:"target"`
}

// SetMapping handles PATCH /api/v1/sessions/:id/mappings: one header is
// assigned to (or cleared from) a target field.
func (h *ImportHandler) SetMapping(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req setMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "source is required")
		return
	}

	view, err := h.importService.SetMapping(c.Request.Context(), id, req.Source, req.Target)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondAccepted(c, view)
}

type setFieldMappingsRequest struct {
	FieldMappings []domain.FieldMapping `json:"field_mappings"`
	FlatMappings  map[string]string     `json:"flat_mappings"`
}

// SetFieldMappings handles PUT /api/v1/sessions/:id/mappings: the whole
// mapping list is replaced, given either as the canonical list or as the
// legacy flat source→target form.
func (h *ImportHandler) SetFieldMappings(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req setFieldMappingsRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.FieldMappings == nil && req.FlatMappings == nil) {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "field_mappings or flat_mappings is required")
		return
	}
	list := req.FieldMappings
	if list == nil {
		list = domain.FromFlatMap(req.FlatMappings)
	}

	view, err := h.importService.SetFieldMappings(c.Request.Context(), id, list)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondAccepted(c, view)
}

type editCellRequest struct {
	Field string `json:"field" binding:"required"`
	Value any    `json:"value"`
}

// EditCell handles PATCH /api/v1/sessions/:id/rows/:rowID.
func (h *ImportHandler) EditCell(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	var req editCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "field is required")
		return
	}

	row, err := h.importService.EditCell(c.Request.Context(), &service.EditCellInput{
		SessionID: id,
		RowID:     c.Param("rowID"),
		FieldKey:  req.Field,
		Value:     req.Value,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, row)
}

// DeleteRow handles DELETE /api/v1/sessions/:id/rows/:rowID.
func (h *ImportHandler) DeleteRow(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	if err := h.importService.DeleteRow(c.Request.Context(), id, c.Param("rowID")); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// Submit handles POST /api/v1/sessions/:id/submit.
func (h *ImportHandler) Submit(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	result, err := h.importService.Submit(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, result)
}

type uploadURLRequest struct {
	FileName    string `json:"file_name" binding:"required"`
	ContentType string `json:"content_type"`
}

// GetUploadURL handles POST /api/v1/uploads/presign for the large-file path.
func (h *ImportHandler) GetUploadURL(c *gin.Context) {
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "file_name is required")
		return
	}

	result, err := h.importService.GetUploadURL(c.Request.Context(), &service.UploadURLInput{
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, result)
}

// DeleteSavedMapping handles DELETE /api/v1/mappings/:sheetSlug: the caller's
// persisted mapping for that sheet is discarded.
func (h *ImportHandler) DeleteSavedMapping(c *gin.Context) {
	namespace := middleware.GetNamespace(c)
	if err := h.importService.DeleteSavedMapping(c.Request.Context(), namespace, c.Param("sheetSlug")); err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_SESSION_ID", "session id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return offset, limit
}

package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"tabflow/internal/domain"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondAccepted sends a 202 response for work still in flight.
func RespondAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "forbidden"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND", "import session not found"
	case errors.Is(err, domain.ErrRowNotFound):
		return http.StatusNotFound, "ROW_NOT_FOUND", "row not found"
	case errors.Is(err, domain.ErrSheetNotFound):
		return http.StatusBadRequest, "SHEET_NOT_FOUND", "sheet config missing or has no fields"
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "unsupported file type; allowed: csv, tsv, txt, xlsx, xls"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrEmptyFile):
		return http.StatusBadRequest, "EMPTY_FILE", "file contains no data rows"
	case errors.Is(err, domain.ErrSessionNotReady):
		return http.StatusConflict, "SESSION_NOT_READY", "import session is still processing"
	case errors.Is(err, domain.ErrSessionSubmitted):
		return http.StatusConflict, "SESSION_SUBMITTED", "import session already submitted"
	case errors.Is(err, domain.ErrRemoteSession):
		return http.StatusConflict, "REMOTE_SESSION", "mapping changes are not supported for remotely processed sessions"
	case errors.Is(err, domain.ErrMappingNotFound):
		return http.StatusNotFound, "MAPPING_NOT_FOUND", "saved mapping not found"
	case errors.Is(err, domain.ErrOffloadUnavailable):
		return http.StatusServiceUnavailable, "OFFLOAD_UNAVAILABLE", "remote processing is not configured"
	case errors.Is(err, domain.ErrOffloadFailed):
		return http.StatusBadGateway, "OFFLOAD_FAILED", "remote processing failed"
	case errors.Is(err, domain.ErrOffloadTimeout):
		return http.StatusGatewayTimeout, "OFFLOAD_TIMEOUT", "remote processing timed out"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		log.Printf("[%s] internal error: %v", requestID, err)
	}
	RespondError(c, status, code, msg)
}

package domain

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrSessionNotFound     = errors.New("import session not found")
	ErrRowNotFound         = errors.New("row not found")
	ErrSheetNotFound       = errors.New("sheet not found in workbook config")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrEmptyFile           = errors.New("file contains no data rows")
	ErrSessionNotReady     = errors.New("import session is still processing")
	ErrSessionSubmitted    = errors.New("import session already submitted")
	ErrMappingNotFound     = errors.New("saved mapping not found")
	ErrRemoteSession       = errors.New("operation not supported for remotely processed sessions")
	ErrOffloadUnavailable  = errors.New("remote processing is not configured")
	ErrOffloadFailed       = errors.New("remote processing failed")
	ErrOffloadTimeout      = errors.New("remote processing timed out")
)

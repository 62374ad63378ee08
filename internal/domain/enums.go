package domain

// FieldType is the declared type of a target schema field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeEmail   FieldType = "email"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
)

// RuleType identifies the kind of a declared validation rule.
type RuleType string

const (
	RuleRegex  RuleType = "regex"
	RuleMin    RuleType = "min"
	RuleMax    RuleType = "max"
	RuleCustom RuleType = "custom"
)

// Severity classifies a cell error. Only error-severity entries make a row invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// FileType represents the allowed file types for import.
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
)

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"csv":  FileTypeCSV,
	"tsv":  FileTypeCSV,
	"txt":  FileTypeCSV,
	"xlsx": FileTypeXLSX,
	"xls":  FileTypeXLSX,
}

// SessionStatus represents the lifecycle of an import session.
type SessionStatus string

const (
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusReady      SessionStatus = "ready"
	SessionStatusSubmitted  SessionStatus = "submitted"
	SessionStatusFailed     SessionStatus = "failed"
)

package leadimport

import (
	"path/filepath"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusParsing   Status = "parsing"
	StatusImporting Status = "importing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// transitions lists the statuses reachable from each status. failed -> parsing
// and failed -> importing are only taken by an explicit retry.
var transitions = map[Status][]Status{
	StatusPending:   {StatusParsing, StatusFailed, StatusCancelled},
	StatusParsing:   {StatusImporting, StatusCompleted, StatusFailed, StatusCancelled},
	StatusImporting: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:    {StatusParsing, StatusImporting},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusParsing, StatusImporting, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether a worker may currently be processing the job.
func (s Status) IsActive() bool {
	return s == StatusParsing || s == StatusImporting
}

func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusParsing || s == StatusImporting
}

func (s Status) CanDelete() bool {
	return !s.IsActive()
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
	FileTypeXLS  FileType = "xls"
)

// ParseFileType accepts a declared type and falls back to the file extension.
func ParseFileType(declared, fileName string) (FileType, bool) {
	candidate := strings.ToLower(strings.TrimSpace(declared))
	if candidate == "" {
		candidate = strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	}
	switch FileType(candidate) {
	case FileTypeCSV, FileTypeXLSX, FileTypeXLS:
		return FileType(candidate), true
	case "txt", "tsv":
		return FileTypeCSV, true
	}
	return "", false
}

type Counters struct {
	TotalRows     int64
	ProcessedRows int64
	ValidRows     int64
	InvalidRows   int64
	ImportedRows  int64
	UpdatedRows   int64
	SkippedRows   int64
	AssignedRows  int64
}

type ImportJob struct {
	ID          string
	CreatorID   string
	FileName    string
	FileType    FileType
	StoragePath string
	SheetName   string
	Status      Status

	Headers   []string
	Delimiter string
	Mapping   ColumnMapping
	Options   *CommitOptions

	Counters       Counters
	CurrentChunk   int
	TotalChunks    int
	Checkpoint     []byte
	ParseCompleted bool

	ErrorMessage string
	ErrorDetails map[string]string
	Attempts     int

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Progress is the projection of a job exposed to pollers and push channels.
type Progress struct {
	JobID         string     `json:"jobId"`
	Status        Status     `json:"status"`
	TotalRows     int64      `json:"totalRows"`
	ProcessedRows int64      `json:"processedRows"`
	ValidRows     int64      `json:"validRows"`
	InvalidRows   int64      `json:"invalidRows"`
	ImportedRows  int64      `json:"importedRows"`
	SkippedRows   int64      `json:"skippedRows"`
	CurrentChunk  int        `json:"currentChunk"`
	TotalChunks   int        `json:"totalChunks"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

func (j ImportJob) Progress() Progress {
	return Progress{
		JobID:         j.ID,
		Status:        j.Status,
		TotalRows:     j.Counters.TotalRows,
		ProcessedRows: j.Counters.ProcessedRows,
		ValidRows:     j.Counters.ValidRows,
		InvalidRows:   j.Counters.InvalidRows,
		ImportedRows:  j.Counters.ImportedRows,
		SkippedRows:   j.Counters.SkippedRows,
		CurrentChunk:  j.CurrentChunk,
		TotalChunks:   j.TotalChunks,
		ErrorMessage:  j.ErrorMessage,
		CompletedAt:   j.CompletedAt,
	}
}

// JobPatch describes a partial update of a job. Nil fields are left untouched.
type JobPatch struct {
	Status         *Status
	Headers        []string
	Delimiter      *string
	SheetName      *string
	Mapping        ColumnMapping
	Options        *CommitOptions
	ErrorMessage   *string
	// ErrorDetails replaces the stored details; an empty non nil map clears them.
	ErrorDetails   map[string]string
	TotalRows      *int64
	CurrentChunk   *int
	TotalChunks    *int
	ParseCompleted *bool
	StartedAt      *time.Time
	CompletedAt    *time.Time

	IncrementAttempts bool
}

// ChunkCount returns how many batches of size batchSize cover rows.
func ChunkCount(rows int64, batchSize int) int {
	if rows <= 0 || batchSize <= 0 {
		return 0
	}
	return int((rows + int64(batchSize) - 1) / int64(batchSize))
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

type ImportJob struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	CreatorID   string `gorm:"type:varchar(36);not null;index"`
	FileName    string `gorm:"size:255;not null"`
	FileType    string `gorm:"size:10;not null"`
	StoragePath string `gorm:"type:text;not null"`
	SheetName   string `gorm:"size:255"`
	Status      string `gorm:"size:20;not null;index"`

	Headers          datatypes.JSON
	Delimiter        string `gorm:"size:4"`
	ColumnMapping    datatypes.JSON
	AssignmentConfig datatypes.JSON
	DuplicateConfig  datatypes.JSON
	DefaultStatus    string `gorm:"size:50"`
	DefaultSource    string `gorm:"size:100"`

	TotalRows     int64 `gorm:"not null;default:0"`
	ProcessedRows int64 `gorm:"not null;default:0"`
	ValidRows     int64 `gorm:"not null;default:0"`
	InvalidRows   int64 `gorm:"not null;default:0"`
	ImportedRows  int64 `gorm:"not null;default:0"`
	UpdatedRows   int64 `gorm:"not null;default:0"`
	SkippedRows   int64 `gorm:"not null;default:0"`
	AssignedRows  int64 `gorm:"not null;default:0"`

	CurrentChunk   int `gorm:"not null;default:0"`
	TotalChunks    int `gorm:"not null;default:0"`
	LastCheckpoint datatypes.JSON
	ParseCompleted bool `gorm:"not null;default:false"`

	ErrorMessage *string `gorm:"type:text"`
	ErrorDetails datatypes.JSON
	Attempts     int `gorm:"not null;default:0"`

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ImportJob) TableName() string {
	return "import_jobs"
}

type ImportRow struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	ImportJobID      string `gorm:"type:varchar(36);not null;uniqueIndex:idx_import_rows_job_row,priority:1;index:idx_import_rows_job_status,priority:1"`
	RowNumber        int    `gorm:"not null;uniqueIndex:idx_import_rows_job_row,priority:2"`
	ChunkNumber      int    `gorm:"not null"`
	Status           string `gorm:"size:10;not null;index:idx_import_rows_job_status,priority:2"`
	RawData          datatypes.JSON
	NormalizedData   datatypes.JSON
	ValidationErrors datatypes.JSON
	Outcome          string  `gorm:"size:10;not null;default:''"`
	LeadID           *string `gorm:"type:varchar(36)"`
	DuplicateOf      string  `gorm:"size:120"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ImportRow) TableName() string {
	return "import_rows"
}

package repository

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/db/models"
)

func toJSON(value any) (datatypes.JSON, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func fromJSON(raw datatypes.JSON, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, target)
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func textValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func toJobModel(job domain.ImportJob) (models.ImportJob, error) {
	row := models.ImportJob{
		ID:             job.ID,
		CreatorID:      job.CreatorID,
		FileName:       job.FileName,
		FileType:       string(job.FileType),
		StoragePath:    job.StoragePath,
		SheetName:      job.SheetName,
		Status:         string(job.Status),
		Delimiter:      job.Delimiter,
		TotalRows:      job.Counters.TotalRows,
		ProcessedRows:  job.Counters.ProcessedRows,
		ValidRows:      job.Counters.ValidRows,
		InvalidRows:    job.Counters.InvalidRows,
		ImportedRows:   job.Counters.ImportedRows,
		UpdatedRows:    job.Counters.UpdatedRows,
		SkippedRows:    job.Counters.SkippedRows,
		AssignedRows:   job.Counters.AssignedRows,
		CurrentChunk:   job.CurrentChunk,
		TotalChunks:    job.TotalChunks,
		ParseCompleted: job.ParseCompleted,
		ErrorMessage:   nullableText(job.ErrorMessage),
		Attempts:       job.Attempts,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if len(job.Checkpoint) > 0 {
		row.LastCheckpoint = datatypes.JSON(job.Checkpoint)
	}

	var err error
	if job.Headers != nil {
		if row.Headers, err = toJSON(job.Headers); err != nil {
			return models.ImportJob{}, fmt.Errorf("encode headers: %w", err)
		}
	}
	if job.Mapping != nil {
		if row.ColumnMapping, err = toJSON(job.Mapping); err != nil {
			return models.ImportJob{}, fmt.Errorf("encode mapping: %w", err)
		}
	}
	if job.Options != nil {
		if err := setOptions(&row, *job.Options); err != nil {
			return models.ImportJob{}, err
		}
	}
	if len(job.ErrorDetails) > 0 {
		if row.ErrorDetails, err = toJSON(job.ErrorDetails); err != nil {
			return models.ImportJob{}, fmt.Errorf("encode error details: %w", err)
		}
	}
	return row, nil
}

func setOptions(row *models.ImportJob, opts domain.CommitOptions) error {
	var err error
	if row.AssignmentConfig, err = toJSON(opts.Assignment); err != nil {
		return fmt.Errorf("encode assignment config: %w", err)
	}
	if row.DuplicateConfig, err = toJSON(opts.Duplicates); err != nil {
		return fmt.Errorf("encode duplicate config: %w", err)
	}
	row.DefaultStatus = opts.DefaultStatus
	row.DefaultSource = opts.DefaultSource
	return nil
}

func toDomainJob(row models.ImportJob) (domain.ImportJob, error) {
	job := domain.ImportJob{
		ID:          row.ID,
		CreatorID:   row.CreatorID,
		FileName:    row.FileName,
		FileType:    domain.FileType(row.FileType),
		StoragePath: row.StoragePath,
		SheetName:   row.SheetName,
		Status:      domain.Status(row.Status),
		Delimiter:   row.Delimiter,
		Counters: domain.Counters{
			TotalRows:     row.TotalRows,
			ProcessedRows: row.ProcessedRows,
			ValidRows:     row.ValidRows,
			InvalidRows:   row.InvalidRows,
			ImportedRows:  row.ImportedRows,
			UpdatedRows:   row.UpdatedRows,
			SkippedRows:   row.SkippedRows,
			AssignedRows:  row.AssignedRows,
		},
		CurrentChunk:   row.CurrentChunk,
		TotalChunks:    row.TotalChunks,
		ParseCompleted: row.ParseCompleted,
		ErrorMessage:   textValue(row.ErrorMessage),
		Attempts:       row.Attempts,
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if len(row.LastCheckpoint) > 0 {
		job.Checkpoint = []byte(row.LastCheckpoint)
	}

	if err := fromJSON(row.Headers, &job.Headers); err != nil {
		return domain.ImportJob{}, fmt.Errorf("decode headers: %w", err)
	}
	if err := fromJSON(row.ColumnMapping, &job.Mapping); err != nil {
		return domain.ImportJob{}, fmt.Errorf("decode mapping: %w", err)
	}
	if err := fromJSON(row.ErrorDetails, &job.ErrorDetails); err != nil {
		return domain.ImportJob{}, fmt.Errorf("decode error details: %w", err)
	}
	if len(row.DuplicateConfig) > 0 && string(row.DuplicateConfig) != "null" {
		opts := domain.CommitOptions{
			DefaultStatus: row.DefaultStatus,
			DefaultSource: row.DefaultSource,
		}
		if err := fromJSON(row.AssignmentConfig, &opts.Assignment); err != nil {
			return domain.ImportJob{}, fmt.Errorf("decode assignment config: %w", err)
		}
		if err := fromJSON(row.DuplicateConfig, &opts.Duplicates); err != nil {
			return domain.ImportJob{}, fmt.Errorf("decode duplicate config: %w", err)
		}
		job.Options = &opts
	}
	return job, nil
}

func toRowModel(row domain.ImportRow) (models.ImportRow, error) {
	raw, err := toJSON(row.Raw)
	if err != nil {
		return models.ImportRow{}, fmt.Errorf("encode raw row %d: %w", row.RowNumber, err)
	}
	out := models.ImportRow{
		ImportJobID: row.JobID,
		RowNumber:   row.RowNumber,
		ChunkNumber: row.ChunkNumber,
		Status:      string(row.Status),
		RawData:     raw,
		Outcome:     string(row.Outcome),
		LeadID:      row.LeadID,
		DuplicateOf: row.DuplicateOf,
	}
	if len(row.Values) > 0 {
		if out.NormalizedData, err = toJSON(row.Values); err != nil {
			return models.ImportRow{}, fmt.Errorf("encode values of row %d: %w", row.RowNumber, err)
		}
	}
	if len(row.Errors) > 0 {
		if out.ValidationErrors, err = toJSON(row.Errors); err != nil {
			return models.ImportRow{}, fmt.Errorf("encode errors of row %d: %w", row.RowNumber, err)
		}
	}
	return out, nil
}

func toDomainRow(row models.ImportRow) (domain.ImportRow, error) {
	out := domain.ImportRow{
		JobID:       row.ImportJobID,
		RowNumber:   row.RowNumber,
		ChunkNumber: row.ChunkNumber,
		Status:      domain.RowStatus(row.Status),
		Outcome:     domain.RowOutcome(row.Outcome),
		LeadID:      row.LeadID,
		DuplicateOf: row.DuplicateOf,
	}
	if err := fromJSON(row.RawData, &out.Raw); err != nil {
		return domain.ImportRow{}, fmt.Errorf("decode raw row %d: %w", row.RowNumber, err)
	}
	if err := fromJSON(row.NormalizedData, &out.Values); err != nil {
		return domain.ImportRow{}, fmt.Errorf("decode values of row %d: %w", row.RowNumber, err)
	}
	if err := fromJSON(row.ValidationErrors, &out.Errors); err != nil {
		return domain.ImportRow{}, fmt.Errorf("decode errors of row %d: %w", row.RowNumber, err)
	}
	return out, nil
}

func toDomainRows(rows []models.ImportRow) ([]domain.ImportRow, error) {
	out := make([]domain.ImportRow, 0, len(rows))
	for _, row := range rows {
		converted, err := toDomainRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func toLeadModel(lead domain.Lead) models.Lead {
	return models.Lead{
		ID:          lead.ID,
		ExternalID:  lead.ExternalID,
		FirstName:   lead.FirstName,
		LastName:    lead.LastName,
		Email:       lead.Email,
		Phone:       lead.Phone,
		Company:     lead.Company,
		JobTitle:    lead.JobTitle,
		Address:     lead.Address,
		PostalCode:  lead.PostalCode,
		City:        lead.City,
		Country:     lead.Country,
		Website:     lead.Website,
		Notes:       lead.Notes,
		Status:      lead.Status,
		Source:      lead.Source,
		AssignedTo:  lead.AssignedTo,
		ImportJobID: nullableText(lead.ImportJobID),
		CreatedAt:   lead.CreatedAt,
		UpdatedAt:   lead.UpdatedAt,
	}
}

func toDomainLead(row models.Lead) domain.Lead {
	return domain.Lead{
		ID:          row.ID,
		ExternalID:  row.ExternalID,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		Email:       row.Email,
		Phone:       row.Phone,
		Company:     row.Company,
		JobTitle:    row.JobTitle,
		Address:     row.Address,
		PostalCode:  row.PostalCode,
		City:        row.City,
		Country:     row.Country,
		Website:     row.Website,
		Notes:       row.Notes,
		Status:      row.Status,
		Source:      row.Source,
		AssignedTo:  row.AssignedTo,
		ImportJobID: textValue(row.ImportJobID),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

// leadColumns maps lead fields to their column names.
var leadColumns = map[domain.Field]string{
	domain.FieldExternalID: "external_id",
	domain.FieldFirstName:  "first_name",
	domain.FieldLastName:   "last_name",
	domain.FieldEmail:      "email",
	domain.FieldPhone:      "phone",
	domain.FieldCompany:    "company",
	domain.FieldJobTitle:   "job_title",
	domain.FieldAddress:    "address",
	domain.FieldPostalCode: "postal_code",
	domain.FieldCity:       "city",
	domain.FieldCountry:    "country",
	domain.FieldWebsite:    "website",
	domain.FieldNotes:      "notes",
	domain.FieldStatus:     "status",
	domain.FieldSource:     "source",
}

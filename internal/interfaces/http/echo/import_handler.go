package echo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/lead-import/internal/application/leadimport"
	"github.com/mohammadpnp/lead-import/internal/application/mapping"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/storage"
)

const HeaderUserID = "X-User-ID"

var (
	errUploadDisabled = errors.New("file uploads are not enabled, send a storagePath instead")
	errMissingUpload  = errors.New("multipart field \"file\" is required")
)

// ImportService is the part of the import orchestrator the HTTP layer uses.
type ImportService interface {
	CreateImport(ctx context.Context, in app.CreateImportInput) (domain.ImportJob, error)
	Get(ctx context.Context, jobID string) (domain.ImportJob, error)
	Progress(ctx context.Context, jobID string) (domain.Progress, error)
	UpdateMapping(ctx context.Context, jobID string, overrides []mapping.Override) (domain.ImportJob, error)
	StartImport(ctx context.Context, jobID string, opts domain.CommitOptions) (domain.ImportJob, error)
	Cancel(ctx context.Context, jobID string) (domain.ImportJob, error)
	Retry(ctx context.Context, jobID string) (domain.ImportJob, error)
	Delete(ctx context.Context, jobID string) error
	WriteErrorReport(ctx context.Context, jobID string, w io.Writer) error
}

// Uploader stores files received by the create endpoint.
type Uploader interface {
	Put(ctx context.Context, path string, r io.Reader, size int64) error
}

type ImportHandler struct {
	service  ImportService
	uploader Uploader
}

type createImportRequest struct {
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	StoragePath string `json:"storagePath"`
	SheetName   string `json:"sheetName"`
}

type updateMappingRequest struct {
	Overrides []mapping.Override `json:"overrides"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type jobResponse struct {
	ID           string                `json:"id"`
	Status       domain.Status         `json:"status"`
	FileName     string                `json:"fileName"`
	FileType     domain.FileType       `json:"fileType"`
	SheetName    string                `json:"sheetName,omitempty"`
	Headers      []string              `json:"headers"`
	Delimiter    string                `json:"delimiter,omitempty"`
	Mapping      domain.ColumnMapping  `json:"mapping"`
	Options      *domain.CommitOptions `json:"options,omitempty"`
	Progress     domain.Progress       `json:"progress"`
	UpdatedRows  int64                 `json:"updatedRows"`
	AssignedRows int64                 `json:"assignedRows"`
	ErrorMessage string                `json:"errorMessage,omitempty"`
	ErrorDetails map[string]string     `json:"errorDetails,omitempty"`
	Attempts     int                   `json:"attempts"`
	CreatedAt    time.Time             `json:"createdAt"`
	StartedAt    *time.Time            `json:"startedAt,omitempty"`
	CompletedAt  *time.Time            `json:"completedAt,omitempty"`
}

func newJobResponse(job domain.ImportJob) jobResponse {
	return jobResponse{
		ID:           job.ID,
		Status:       job.Status,
		FileName:     job.FileName,
		FileType:     job.FileType,
		SheetName:    job.SheetName,
		Headers:      job.Headers,
		Delimiter:    job.Delimiter,
		Mapping:      job.Mapping,
		Options:      job.Options,
		Progress:     job.Progress(),
		UpdatedRows:  job.Counters.UpdatedRows,
		AssignedRows: job.Counters.AssignedRows,
		ErrorMessage: job.ErrorMessage,
		ErrorDetails: job.ErrorDetails,
		Attempts:     job.Attempts,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

func NewImportHandler(service ImportService, uploader Uploader) *ImportHandler {
	return &ImportHandler{service: service, uploader: uploader}
}

// CreateImport accepts either a multipart upload in the "file" field or a
// JSON body pointing at an already stored file.
func (h *ImportHandler) CreateImport(c echo.Context) error {
	creatorID := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
	if creatorID == "" {
		return c.JSON(http.StatusUnauthorized, apiResponse{Error: &errorBody{
			Code:    "missing_user",
			Message: HeaderUserID + " header is required",
		}})
	}

	in := app.CreateImportInput{CreatorID: creatorID}
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		stored, err := h.storeUpload(c)
		if errors.Is(err, errUploadDisabled) || errors.Is(err, errMissingUpload) {
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "bad_request",
				Message: err.Error(),
			}})
		}
		if err != nil {
			return writeError(c, err)
		}
		in.FileName = stored.FileName
		in.FileType = stored.FileType
		in.StoragePath = stored.StoragePath
		in.SheetName = stored.SheetName
	} else {
		var req createImportRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
				Code:    "bad_request",
				Message: "invalid request body",
			}})
		}
		in.FileName = req.FileName
		in.FileType = req.FileType
		in.StoragePath = req.StoragePath
		in.SheetName = req.SheetName
	}

	job, err := h.service.CreateImport(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, app.ErrImportFileUnreadable) && job.ID != "" {
			return c.JSON(http.StatusUnprocessableEntity, apiResponse{
				Data: newJobResponse(job),
				Error: &errorBody{
					Code:    "unreadable_file",
					Message: job.ErrorMessage,
				},
			})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, apiResponse{Data: newJobResponse(job)})
}

func (h *ImportHandler) storeUpload(c echo.Context) (createImportRequest, error) {
	if h.uploader == nil {
		return createImportRequest{}, errUploadDisabled
	}
	header, err := c.FormFile("file")
	if err != nil {
		return createImportRequest{}, errMissingUpload
	}
	file, err := header.Open()
	if err != nil {
		return createImportRequest{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	path := "imports/" + uuid.NewString() + "/" + name
	if err := h.uploader.Put(c.Request().Context(), path, file, header.Size); err != nil {
		return createImportRequest{}, fmt.Errorf("store upload: %w", err)
	}
	return createImportRequest{
		FileName:    name,
		FileType:    c.FormValue("fileType"),
		StoragePath: path,
		SheetName:   c.FormValue("sheetName"),
	}, nil
}

func (h *ImportHandler) GetImport(c echo.Context) error {
	job, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: newJobResponse(job)})
}

func (h *ImportHandler) GetProgress(c echo.Context) error {
	progress, err := h.service.Progress(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: progress})
}

func (h *ImportHandler) UpdateMapping(c echo.Context) error {
	var req updateMappingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "invalid request body",
		}})
	}
	job, err := h.service.UpdateMapping(c.Request().Context(), c.Param("id"), req.Overrides)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: newJobResponse(job)})
}

func (h *ImportHandler) StartImport(c echo.Context) error {
	var opts domain.CommitOptions
	if err := c.Bind(&opts); err != nil {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{
			Code:    "bad_request",
			Message: "invalid request body",
		}})
	}
	job, err := h.service.StartImport(c.Request().Context(), c.Param("id"), opts)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: newJobResponse(job)})
}

func (h *ImportHandler) CancelImport(c echo.Context) error {
	job, err := h.service.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: newJobResponse(job)})
}

func (h *ImportHandler) RetryImport(c echo.Context) error {
	job, err := h.service.Retry(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, apiResponse{Data: newJobResponse(job)})
}

func (h *ImportHandler) DeleteImport(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DownloadErrors renders the invalid rows of a job as a CSV attachment.
func (h *ImportHandler) DownloadErrors(c echo.Context) error {
	id := c.Param("id")
	var buf bytes.Buffer
	if err := h.service.WriteErrorReport(c.Request().Context(), id, &buf); err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "import-"+id+"-errors.csv"))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func writeError(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "internal_error"
	message := "internal server error"

	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		status, code, message = http.StatusNotFound, "not_found", "import job not found"
	case errors.Is(err, storage.ErrObjectNotFound):
		status, code, message = http.StatusNotFound, "file_not_found", err.Error()
	case errors.Is(err, domain.ErrJobActive):
		status, code, message = http.StatusConflict, "job_active", err.Error()
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code, message = http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, domain.ErrMissingContactMapping):
		status, code, message = http.StatusUnprocessableEntity, "missing_contact_mapping", err.Error()
	case errors.Is(err, domain.ErrInvalidMapping),
		errors.Is(err, domain.ErrUnknownField),
		errors.Is(err, domain.ErrDuplicateTarget):
		status, code, message = http.StatusUnprocessableEntity, "invalid_mapping", err.Error()
	case errors.Is(err, domain.ErrInvalidConfig):
		status, code, message = http.StatusUnprocessableEntity, "invalid_config", err.Error()
	case errors.Is(err, app.ErrUnsupportedFileType):
		status, code, message = http.StatusBadRequest, "unsupported_file_type", err.Error()
	case errors.Is(err, app.ErrInvalidImportRequest):
		status, code, message = http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, app.ErrJobFailed):
		status, code, message = http.StatusInternalServerError, "job_failed", err.Error()
	}
	return c.JSON(status, apiResponse{Error: &errorBody{Code: code, Message: message}})
}

package echo

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	app "github.com/mohammadpnp/lead-import/internal/application/leadimport"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/logging"
)

const HeaderTaskSignature = "X-Task-Signature"

type SignatureVerifier interface {
	Enabled() bool
	Verify(payload []byte, header string) error
}

// TaskHandler runs parse and commit work units pushed over HTTP by an
// external scheduler. A non 2xx answer asks the scheduler to redeliver.
// Every task must carry a valid signature; without a signing secret all
// tasks are refused.
type TaskHandler struct {
	runner   domain.TaskRunner
	verifier SignatureVerifier
	log      *logrus.Entry
}

func NewTaskHandler(runner domain.TaskRunner, verifier SignatureVerifier, log *logrus.Entry) *TaskHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TaskHandler{runner: runner, verifier: verifier, log: log.WithField("component", "task_handler")}
}

func (h *TaskHandler) RunParse(c echo.Context) error {
	var task domain.ParseTask
	if status, refusal := h.decode(c, &task); refusal != nil {
		return c.JSON(status, apiResponse{Error: refusal})
	}
	if task.ImportJobID == "" {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{Code: "bad_request", Message: "importJobId is required"}})
	}
	return h.finish(c, task.ImportJobID, h.runner.RunParse(c.Request().Context(), task))
}

func (h *TaskHandler) RunCommit(c echo.Context) error {
	var task domain.CommitTask
	if status, refusal := h.decode(c, &task); refusal != nil {
		return c.JSON(status, apiResponse{Error: refusal})
	}
	if task.ImportJobID == "" {
		return c.JSON(http.StatusBadRequest, apiResponse{Error: &errorBody{Code: "bad_request", Message: "importJobId is required"}})
	}
	return h.finish(c, task.ImportJobID, h.runner.RunCommit(c.Request().Context(), task))
}

// decode verifies the body signature and unmarshals it into task. A non
// nil result is the refusal to send back.
func (h *TaskHandler) decode(c echo.Context, task any) (int, *errorBody) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return http.StatusBadRequest, &errorBody{Code: "bad_request", Message: "unreadable body"}
	}
	if h.verifier == nil || !h.verifier.Enabled() {
		return http.StatusForbidden, &errorBody{Code: "signing_disabled", Message: "task signing is not configured"}
	}
	if err := h.verifier.Verify(body, c.Request().Header.Get(HeaderTaskSignature)); err != nil {
		logging.FromContext(c.Request().Context(), h.log).WithError(err).Warn("rejected task with bad signature")
		return http.StatusUnauthorized, &errorBody{Code: "invalid_signature", Message: err.Error()}
	}
	if err := json.Unmarshal(body, task); err != nil {
		return http.StatusBadRequest, &errorBody{Code: "bad_request", Message: "invalid task payload"}
	}
	return 0, nil
}

func (h *TaskHandler) finish(c echo.Context, jobID string, err error) error {
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, apiResponse{Data: map[string]string{"importJobId": jobID, "result": "done"}})
	case errors.Is(err, app.ErrJobFailed):
		// The failure is on the job already; redelivery would not help.
		return c.JSON(http.StatusOK, apiResponse{Data: map[string]string{"importJobId": jobID, "result": "failed"}})
	default:
		logging.FromContext(c.Request().Context(), h.log).WithError(err).WithField("job_id", jobID).Error("task failed, asking for redelivery")
		return c.JSON(http.StatusServiceUnavailable, apiResponse{Error: &errorBody{Code: "task_failed", Message: err.Error()}})
	}
}

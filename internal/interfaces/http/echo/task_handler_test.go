package echo_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/lead-import/internal/application/leadimport"
	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
	"github.com/mohammadpnp/lead-import/internal/infrastructure/queue"
	httpecho "github.com/mohammadpnp/lead-import/internal/interfaces/http/echo"
)

type fakeTaskRunner struct {
	err    error
	parsed []string
	commit []domain.CommitTask
}

func (f *fakeTaskRunner) RunParse(_ context.Context, task domain.ParseTask) error {
	f.parsed = append(f.parsed, task.ImportJobID)
	return f.err
}

func (f *fakeTaskRunner) RunCommit(_ context.Context, task domain.CommitTask) error {
	f.commit = append(f.commit, task)
	return f.err
}

func (f *fakeTaskRunner) FailJob(context.Context, string, error) error {
	return nil
}

func postTask(e *echo.Echo, path, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(httpecho.HeaderTaskSignature, signature)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newTaskServer(runner domain.TaskRunner, signer *queue.Signer) *echo.Echo {
	e := echo.New()
	httpecho.RegisterRoutes(e, httpecho.NewImportHandler(&fakeImportService{}, nil), httpecho.NewTaskHandler(runner, signer, nil))
	return e
}

func TestTaskHandlerRunsSignedTasks(t *testing.T) {
	t.Parallel()

	signer := queue.NewSigner("secret")
	runner := &fakeTaskRunner{}
	e := newTaskServer(runner, signer)

	body := `{"importJobId":"job-1"}`
	rec := postTask(e, "/internal/tasks/parse", body, signer.Sign([]byte(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(runner.parsed) != 1 || runner.parsed[0] != "job-1" {
		t.Fatalf("unexpected parse calls: %v", runner.parsed)
	}

	commit := `{"importJobId":"job-1","assignmentConfig":{"mode":"none"},"duplicateConfig":{"strategy":"update","checkDatabase":true}}`
	rec = postTask(e, "/internal/tasks/commit", commit, signer.Sign([]byte(commit)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if runner.commit[0].DuplicateConfig.Strategy != domain.DuplicateUpdate {
		t.Fatalf("unexpected commit task: %+v", runner.commit[0])
	}
}

func TestTaskHandlerRejectsBadSignature(t *testing.T) {
	t.Parallel()

	runner := &fakeTaskRunner{}
	e := newTaskServer(runner, queue.NewSigner("secret"))

	rec := postTask(e, "/internal/tasks/parse", `{"importJobId":"job-1"}`, "sha256=00")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = postTask(e, "/internal/tasks/parse", `{"importJobId":"job-1"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(runner.parsed) != 0 {
		t.Fatalf("runner must not be called, got %v", runner.parsed)
	}
}

func TestTaskHandlerStatusForFailures(t *testing.T) {
	t.Parallel()

	signer := queue.NewSigner("secret")
	body := `{"importJobId":"job-1"}`

	failed := newTaskServer(&fakeTaskRunner{err: fmt.Errorf("%w: bad file", app.ErrJobFailed)}, signer)
	if rec := postTask(failed, "/internal/tasks/parse", body, signer.Sign([]byte(body))); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a failed job, got %d", rec.Code)
	}

	transient := newTaskServer(&fakeTaskRunner{err: errors.New("db down")}, signer)
	if rec := postTask(transient, "/internal/tasks/parse", body, signer.Sign([]byte(body))); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for a transient error, got %d", rec.Code)
	}

	if rec := postTask(transient, "/internal/tasks/parse", `{}`, signer.Sign([]byte(`{}`))); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without job id, got %d", rec.Code)
	}
}

func TestTaskHandlerRefusesTasksWithoutSigningSecret(t *testing.T) {
	t.Parallel()

	runner := &fakeTaskRunner{}
	e := newTaskServer(runner, queue.NewSigner(""))

	commit := `{"importJobId":"job-1","assignmentConfig":{"mode":"round_robin","roundRobinUserIds":["ghost"]},"duplicateConfig":{"strategy":"create"}}`
	if rec := postTask(e, "/internal/tasks/commit", commit, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := postTask(e, "/internal/tasks/parse", `{"importJobId":"job-1"}`, "sha256=00"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(runner.parsed) != 0 || len(runner.commit) != 0 {
		t.Fatalf("runner must not be called, got %v %v", runner.parsed, runner.commit)
	}
}

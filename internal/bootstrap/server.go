package bootstrap

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mohammadpnp/lead-import/internal/infrastructure/logging"
	httpecho "github.com/mohammadpnp/lead-import/internal/interfaces/http/echo"
)

func NewHTTPServer(a *App) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(middleware.BodyLimit(a.Config.BodyLimit))
	server.Use(requestLogger(a.Log))

	importHandler := httpecho.NewImportHandler(a.Orchestrator, a.Store)
	// Task callbacks are only served when they can be authenticated.
	var taskHandler *httpecho.TaskHandler
	if a.Signer.Enabled() {
		taskHandler = httpecho.NewTaskHandler(a.Orchestrator, a.Signer, a.Log)
	}
	httpecho.RegisterRoutes(server, importHandler, taskHandler)

	return server
}

// requestLogger attaches a request scoped logger to the context and logs
// every request once it completes.
func requestLogger(base *logrus.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			req := c.Request()
			entry := base.WithFields(logrus.Fields{
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
				"method":     req.Method,
				"path":       req.URL.Path,
			})
			c.SetRequest(req.WithContext(logging.WithEntry(req.Context(), entry)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := logrus.Fields{
				"status":      c.Response().Status,
				"duration_ms": time.Since(started).Milliseconds(),
			}
			switch {
			case c.Response().Status >= 500:
				entry.WithFields(fields).Error("request failed")
			case c.Path() == "/healthz" || c.Path() == "/metrics":
				entry.WithFields(fields).Debug("request handled")
			default:
				entry.WithFields(fields).Info("request handled")
			}
			return nil
		}
	}
}

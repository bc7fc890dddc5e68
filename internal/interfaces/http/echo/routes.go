package echo

import (
	"net/http"

	e "github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(server *e.Echo, importHandler *ImportHandler, taskHandler *TaskHandler) {
	server.GET("/healthz", func(c e.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	server.GET("/metrics", e.WrapHandler(promhttp.Handler()))

	imports := server.Group("/api/v1/imports")
	imports.POST("", importHandler.CreateImport)
	imports.GET("/:id", importHandler.GetImport)
	imports.GET("/:id/progress", importHandler.GetProgress)
	imports.PUT("/:id/mapping", importHandler.UpdateMapping)
	imports.POST("/:id/start", importHandler.StartImport)
	imports.POST("/:id/cancel", importHandler.CancelImport)
	imports.POST("/:id/retry", importHandler.RetryImport)
	imports.DELETE("/:id", importHandler.DeleteImport)
	imports.GET("/:id/errors.csv", importHandler.DownloadErrors)

	if taskHandler != nil {
		tasks := server.Group("/internal/tasks")
		tasks.POST("/parse", taskHandler.RunParse)
		tasks.POST("/commit", taskHandler.RunCommit)
	}
}

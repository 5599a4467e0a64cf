package apperror

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// Middleware renders the last error a handler attached to the gin context.
func Middleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, body := ToHTTPError(err)
		if status >= 500 {
			log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		} else {
			log.Debug("request rejected", "method", c.Request.Method, "path", c.FullPath(), "status", status, "error", err)
		}
		c.JSON(status, body)
	}
}

package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// LogApi writes one access line per request. Paths in skip, such as health
// checks, are not logged.
func LogApi(skip ...string) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: skip,
		Formatter: func(param gin.LogFormatterParams) string {
			line := fmt.Sprintf("[%s] | %s | %d | %s | %s | %s | %s",
				param.TimeStamp.Format("2006-01-02 15:04:05"),
				param.ClientIP,
				param.StatusCode,
				param.Method,
				param.Path,
				param.Latency,
				param.Request.UserAgent(),
			)
			if param.ErrorMessage != "" {
				line += " | " + param.ErrorMessage
			}
			return line + "\n"
		},
	})
}

package obs

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// InitSentry enables error reporting. An empty DSN leaves reporting disabled.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// FlushSentry waits briefly for buffered events to be delivered.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports err with the request route attached. A no-op when Sentry is not initialised.
func CaptureError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		if c != nil && c.Request != nil {
			scope.SetTag("method", c.Request.Method)
			scope.SetTag("route", c.FullPath())
		}
		sentry.CaptureException(err)
	})
}

// RecoveryMiddleware converts panics into a 500 envelope, logging and reporting them.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetExtra("panic", rec)
					scope.SetExtra("stack", string(debug.Stack()))
					sentry.CaptureMessage("panic in request")
				})

				logrus.WithFields(logrus.Fields{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
					"panic":  fmt.Sprint(rec),
				}).Error("panic_recovered")

				code := "INTERNAL_ERROR"
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": "Internal server error",
					"data":    nil,
					"code":    code,
				})
			}
		}()
		c.Next()
	}
}

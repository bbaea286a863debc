package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nudge/internal/shared/logging"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

func resolveRequestID(r *http.Request) string {
	for _, header := range []string{requestIDHeader, "X-Log-Id", "X-Correlation-Id"} {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := resolveRequestID(c.Request)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

func loggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP: %s %s -> %d in %s [%s]",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond), c.GetString(requestIDKey))
	}
}

func metricsMiddleware(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		recorder.RecordHTTPServerRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// jsonContentType rejects non-JSON request bodies.
func jsonContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if ct := c.ContentType(); ct != "" && ct != gin.MIMEJSON {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, errorBody("Content-Type must be application/json"))
				return
			}
		}
		c.Next()
	}
}

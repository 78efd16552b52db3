package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/blockroll/internal/logging"
)

// HeaderRequestID - заголовок, в котором trace-ID уходит клиенту
const HeaderRequestID = "X-Request-ID"

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи.
type RequestLogger struct {
	log *logging.Logger
}

// NewRequestLogger создает middleware. log == nil - логгер по умолчанию.
func NewRequestLogger(log *logging.Logger) *RequestLogger {
	if log == nil {
		log = logging.Default()
	}
	return &RequestLogger{log: log}
}

// TraceID возвращает trace-ID текущего запроса
func TraceID(c *gin.Context) string {
	return c.GetString("trace_id")
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// trace-id из OpenTelemetry, затем из заголовка клиента, иначе новый
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		switch {
		case span.SpanContext().IsValid():
			traceID = span.SpanContext().TraceID().String()
		case c.GetHeader(HeaderRequestID) != "":
			traceID = c.GetHeader(HeaderRequestID)
		default:
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header(HeaderRequestID, traceID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		clientIP := c.ClientIP()

		// Опросы health и metrics не засоряют INFO
		logf := rl.log.Info
		if path == "/health" || strings.HasPrefix(path, "/metrics") {
			logf = rl.log.Debug
		}

		logf("[HTTP] ▶ %s %s ip=%s trace=%s", method, path, clientIP, traceID)

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		if status >= 500 {
			rl.log.Error("[HTTP] ◀ %s %s %d %s trace=%s err=%s", method, path, status, latency, traceID, c.Errors.String())
			return
		}
		logf("[HTTP] ◀ %s %s %d %s trace=%s", method, path, status, latency, traceID)
	}
}

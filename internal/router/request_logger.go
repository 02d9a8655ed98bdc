package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pictopercept/internal/handlers"
)

// RequestLogger logs every request once it has been handled. Successful
// requests go to Debug; client and server errors to Warn and Error.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level, msg := zapcore.DebugLevel, "Request"
		switch {
		case status >= 500:
			level, msg = zapcore.ErrorLevel, "Server error"
		case status >= 400:
			level, msg = zapcore.WarnLevel, "Client error"
		}

		ce := log.Check(level, msg)
		if ce == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Bool("htmx", c.GetHeader("HX-Request") == "true"),
		}
		if sess, ok := handlers.CurrentSession(c); ok {
			fields = append(fields, zap.String("session_id", sess.ID), zap.String("user_id", sess.State.UserID()))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		ce.Write(fields...)
	}
}

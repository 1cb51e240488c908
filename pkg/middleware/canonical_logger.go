package middleware

import (
	"time"

	"github.com/Alwanly/img/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CanonicalLoggerMiddleware emits one log line per request with whatever
// fields handlers added to the request LogContext.
func CanonicalLoggerMiddleware(log *logger.CanonicalLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logCtx := logger.NewLogContext()

		reqID := c.Get(fiber.HeaderXRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, reqID)
		logCtx.AddField(zap.String(logger.FieldRequestID, reqID))

		userCtx := logger.WithLogContext(c.UserContext(), logCtx)
		c.SetUserContext(logger.WithCorrelationID(userCtx, reqID))

		start := time.Now()

		defer func() {
			duration := time.Since(start)
			status := c.Response().StatusCode()

			fields := []zap.Field{
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			}
			fields = append(fields, logCtx.Fields()...)

			// health is polled often, keep it out of info
			if status >= 500 {
				log.Error("http_request", fields...)
			} else {
				log.Debug("http_request", fields...)
			}
		}()

		return c.Next()
	}
}

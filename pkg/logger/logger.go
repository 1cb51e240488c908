package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type CanonicalLogger struct {
	l *zap.Logger
}

// NewLoggerFromEnv creates a new logger based on the LOG_FORMAT and LOG_LEVEL environment variables.
// Supported LOG_FORMAT values:
//   - "console" or "development": Human-readable console output with colored levels, ISO8601 timestamps
//   - "json" or "production" (default): Structured JSON output for production environments
//
// LOG_LEVEL filters output and defaults to "info". Unknown levels are rejected.
func NewLoggerFromEnv(component string) (*CanonicalLogger, error) {
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "production"
	}

	var cfg zap.Config
	if logFormat == "console" || logFormat == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	// Skip the wrapper frame so the caller field points at the calling code
	zapLogger, err := cfg.Build(
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("component", component)),
	)
	if err != nil {
		return nil, err
	}

	return &CanonicalLogger{
		l: zapLogger,
	}, nil
}

// New wraps an already configured zap logger.
func New(l *zap.Logger) *CanonicalLogger {
	return &CanonicalLogger{l: l}
}

// ParseLevel maps a LOG_LEVEL value to a zap level. Empty means info.
func ParseLevel(v string) (zapcore.Level, error) {
	if v == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(v)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
	}
	return level, nil
}

func (c *CanonicalLogger) Sync() {
	_ = c.l.Sync()
}

func (c *CanonicalLogger) Info(msg string, fields ...zap.Field) {
	c.l.Info(msg, fields...)
}

func (c *CanonicalLogger) Debug(msg string, fields ...zap.Field) {
	c.l.Debug(msg, fields...)
}

func (c *CanonicalLogger) Warn(msg string, fields ...zap.Field) {
	c.l.Warn(msg, fields...)
}

func (c *CanonicalLogger) Error(msg string, fields ...zap.Field) {
	c.l.Error(msg, fields...)
}

func (c *CanonicalLogger) Fatal(msg string, fields ...zap.Field) {
	c.l.Fatal(msg, fields...)
}

// Panic logs at panic level and then panics.
func (c *CanonicalLogger) Panic(msg string, fields ...zap.Field) {
	c.l.Panic(msg, fields...)
}

func (c *CanonicalLogger) WithError(err error) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.Error(err))}
}

// WithErrorDetail attaches both the short error and its verbose %+v rendering.
func (c *CanonicalLogger) WithErrorDetail(err error) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(
		zap.Error(err),
		zap.String(FieldErrorDetail, fmt.Sprintf("%+v", err)),
	)}
}

func (c *CanonicalLogger) WithInstanceID(id string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String(FieldInstanceID, id))}
}

func (c *CanonicalLogger) WithEvent(name string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String(FieldEvent, name))}
}

func (c *CanonicalLogger) Component(name string) *CanonicalLogger {
	return &CanonicalLogger{l: c.l.With(zap.String("component", name))}
}

func (c *CanonicalLogger) HTTPError(method, path string, status int, err error) {
	c.l.Error("http_error", zap.String("method", method), zap.String("path", path), zap.Int("status", status), zap.Error(err))
}

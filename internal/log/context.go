package log

import (
	"context"
	"log/slog"

	"investimento/internal/core"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// from prefers the request-scoped logger so records carry the request ID.
func (sl *StructuredLogger) from(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return sl.logger
}

// LogProjection logs a completed projection.
func (sl *StructuredLogger) LogProjection(ctx context.Context, p core.Projection) {
	in := p.Input
	fields := NewFields().
		WithProjectionInput(in.InitialAmount, in.MonthlyContribution, in.Months, in.AnnualRatePercent, in.TargetAmount).
		WithOperation(OpCalculate)
	fields[FieldPolicy] = string(p.Policy)
	fields[FieldFinalValue] = p.Final().CumulativeValue
	if p.TargetMonths != nil {
		fields[FieldTargetMonths] = *p.TargetMonths
	}

	sl.from(ctx).WithComponent(ComponentProjection).InfoContext(ctx, "Projection computed", fields.ToSlice()...)
}

// LogExport logs a CSV export.
func (sl *StructuredLogger) LogExport(ctx context.Context, months, size int, cacheHit bool) {
	fields := NewFields().WithOperation(OpExport)
	fields[FieldMonths] = months
	fields[FieldBytes] = size
	fields[FieldCacheHit] = cacheHit

	sl.from(ctx).WithComponent(ComponentExport).InfoContext(ctx, "Projection exported", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)

	sl.from(ctx).WithComponent(component).ErrorContext(ctx, msg, allFields.ToSlice()...)
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ServiceLogger provides structured logging for service layer operations
type ServiceLogger struct {
	logger *slog.Logger
	config LogConfig
}

type LogConfig struct {
	Service     string
	Component   string
	EnableDebug bool
}

func NewServiceLogger(logger *slog.Logger, config LogConfig) *ServiceLogger {
	return &ServiceLogger{
		logger: logger.With("service", config.Service, "component", config.Component),
		config: config,
	}
}

// LogOperation records the outcome of one service call with a level picked
// from the error class: expected failures log as warnings, not errors.
func (l *ServiceLogger) LogOperation(ctx context.Context, operation, userID, resourceID string, duration time.Duration, err error) {
	level := slog.LevelInfo
	status := "success"

	if err != nil {
		level = slog.LevelError
		status = "error"

		if IsValidation(err) || IsBusinessRule(err) {
			level = slog.LevelWarn
			status = "validation_error"
		} else if IsUnauthorized(err) {
			level = slog.LevelWarn
			status = "unauthorized"
		} else if IsNotFound(err) {
			level = slog.LevelInfo
			status = "not_found"
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.String("resource_id", resourceID),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		if validationErr, ok := err.(ValidationErrors); ok {
			attrs = append(attrs, slog.Int("validation_errors_count", len(validationErr)))
		} else if businessErr, ok := err.(*BusinessRuleError); ok {
			attrs = append(attrs, slog.String("business_rule", businessErr.Rule))
		} else if permErr, ok := err.(*PermissionError); ok {
			attrs = append(attrs, slog.String("permission_action", permErr.Action))
		}
	}

	l.logger.LogAttrs(ctx, level, fmt.Sprintf("%s operation %s", operation, status), attrs...)
}

func (l *ServiceLogger) LogValidationError(ctx context.Context, operation, userID string, validationErrors ValidationErrors) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Int("error_count", len(validationErrors)),
	}

	// Limit to first 5 errors to avoid log spam
	for i, err := range validationErrors {
		if i >= 5 {
			break
		}
		attrs = append(attrs, slog.Group(fmt.Sprintf("error_%d", i+1),
			slog.String("field", err.Field),
			slog.String("message", err.Message),
			slog.Any("value", err.Value),
		))
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "Validation failed", attrs...)
}

func (l *ServiceLogger) LogPermissionDenied(ctx context.Context, operation string, permError *PermissionError) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", permError.UserID),
		slog.String("resource_id", permError.ResourceID),
		slog.String("resource_type", permError.Resource),
		slog.String("action", permError.Action),
		slog.String("reason", permError.Reason),
	}

	l.logger.LogAttrs(ctx, slog.LevelWarn, "Permission denied", attrs...)
}

func (l *ServiceLogger) LogDebug(ctx context.Context, message string, attrs ...slog.Attr) {
	if !l.config.EnableDebug {
		return
	}
	l.logger.LogAttrs(ctx, slog.LevelDebug, message, attrs...)
}

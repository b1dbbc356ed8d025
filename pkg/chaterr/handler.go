package chaterr

import (
	"context"
	"errors"
	"log/slog"
)

// Handler processes errors that escape the command pipeline in a
// consistent way, logging at a severity derived from the error's Kind.
type Handler interface {
	Handle(ctx context.Context, err error)
}

// DefaultHandler is the default error handler, logging through slog.
type DefaultHandler struct {
	logger *slog.Logger
}

// NewDefaultHandler creates a new default error handler.
func NewDefaultHandler(logger *slog.Logger) *DefaultHandler {
	return &DefaultHandler{logger: logger}
}

// Handle implements Handler.
func (h *DefaultHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var ce *ChatError
	if !errors.As(err, &ce) {
		h.logger.ErrorContext(ctx, "unhandled error", slog.String("error", err.Error()))
		return
	}

	attrs := []any{slog.String("kind", string(ce.Kind))}
	if ce.Command != "" {
		attrs = append(attrs, slog.String("command", ce.Command))
	}
	if ce.Details != "" {
		attrs = append(attrs, slog.String("details", ce.Details))
	}
	if ce.Cause != nil {
		attrs = append(attrs, slog.String("cause", ce.Cause.Error()))
	}

	switch ce.Kind {
	case KindServerError:
		h.logger.ErrorContext(ctx, "command failed", attrs...)
	case KindNoRoom, KindNoUserOnline, KindRoomRemoved:
		h.logger.WarnContext(ctx, "command failed", attrs...)
	default:
		h.logger.InfoContext(ctx, "command failed", attrs...)
	}
}

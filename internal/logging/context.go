package logging

import "context"

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the Logger stashed by WithLogger, if any.
func FromContext(ctx context.Context) (*Logger, bool) {
	logger, ok := ctx.Value(loggerKey).(*Logger)
	return logger, ok
}

// WithLogger stashes logger on ctx for later retrieval by FromContext.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

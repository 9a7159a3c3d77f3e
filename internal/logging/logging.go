package logging

import (
	"context"

	"go.uber.org/zap"

	"liveclass/internal/apperr"
)

type contextKey struct{}

// New builds the process logger. Production environments get JSON output at
// info level; everything else gets the colourless development console encoder.
func New(env string) (*zap.Logger, error) {
	if env == "production" || env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ContextWithLogger returns a derived context that carries the provided logger.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a request logger, falling back to base and then to a no-op logger.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	if base != nil {
		return base
	}
	return zap.NewNop()
}

// Err returns the standard pair of fields attached to a failed operation.
func Err(err error) []zap.Field {
	return []zap.Field{zap.Error(err), zap.String("error_kind", string(apperr.KindOf(err)))}
}

package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request logger, or the default logger outside a
// request.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithAccount tags every later log line of the request with the signed-in
// account. The session id is fingerprinted, never logged raw.
func WithAccount(ctx context.Context, accountID, sessionID string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("account_id", accountID, "sid", Redact(sessionID)))
}

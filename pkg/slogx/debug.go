package slogx

import (
	"context"
	"log/slog"
)

// AuthDebugEnabled reports whether AuthDebug writes anything.
func AuthDebugEnabled() bool { return authDebug.Load() }

// AuthDebug logs step-by-step detail of an authentication flow. It is a
// no-op unless Config.AuthDebug was set, which New refuses in prod.
func AuthDebug(ctx context.Context, msg string, args ...any) {
	if !authDebug.Load() {
		return
	}
	FromContext(ctx).DebugContext(ctx, msg, append(args, slog.Bool("auth_debug", true))...)
}

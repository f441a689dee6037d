package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const serviceName = "callrep"

// New returns the process logger. local and dev get debug-level text output;
// other environments get JSON at info.
func New(appEnv string) *slog.Logger {
	return newWithWriter(os.Stdout, appEnv)
}

func newWithWriter(w io.Writer, appEnv string) *slog.Logger {
	var h slog.Handler
	switch appEnv {
	case "local", "dev":
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(h).With("service", serviceName, "env", appEnv)
}

type ctxKey struct{}

func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the request-scoped logger, or slog.Default() outside a request.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

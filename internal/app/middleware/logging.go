package middleware

import (
	"context"
	"log/slog"
	"time"

	"rentsync/internal/app/commands"
	"rentsync/internal/app/queries"
)

func Logging(logger *slog.Logger) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		if logger == nil {
			return nextFn
		}
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			attrs := []any{"command", cmd.Key(), "duration", time.Since(start)}
			if err != nil {
				logger.WarnContext(ctx, "command failed", append(attrs, "error", err)...)
				return nil, err
			}
			logger.DebugContext(ctx, "command handled", attrs...)
			return res, nil
		})
	}
}

func QueryLogging(logger *slog.Logger) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		if logger == nil {
			return nextFn
		}
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, q)
			if err != nil {
				logger.WarnContext(ctx, "query failed", "query", q.Key(), "duration", time.Since(start), "error", err)
				return nil, err
			}
			return res, nil
		})
	}
}

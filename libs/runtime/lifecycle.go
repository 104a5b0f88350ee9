package runtime

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Shutdown runs each hook with a shared deadline, logging (not returning) failures.
func Shutdown(logger *slog.Logger, timeout time.Duration, hooks map[string]func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for name, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx); err != nil {
			logger.Error("shutdown hook failed", "hook", name, "err", err)
		}
	}
}

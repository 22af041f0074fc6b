package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext derives a context canceled by the first SIGINT or SIGTERM.
// A second signal exits immediately with status 1, for a host that does not
// wait for stdio to drain. The returned stop function releases the signal
// handler and cancels the context; callers defer it.
func shutdownContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		var received int

		for {
			select {
			case sig := <-sigCh:
				received++

				if received > 1 {
					logger.Warn("second signal, exiting now", slog.String("signal", sig.String()))
					os.Exit(1)
				}

				logger.Info("signal received, shutting down", slog.String("signal", sig.String()))
				cancel()
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		signal.Stop(sigCh)
		cancel()

		select {
		case <-done:
		default:
			close(done)
		}
	}

	return ctx, stop
}

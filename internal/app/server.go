package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Start serves HTTP and returns a channel closed once the process should exit.
// That is either a termination signal or a mode job that ended on its own.
func (a *App) Start() <-chan struct{} {
	terminate := make(chan struct{})

	go func() {
		slog.Info("http server listening", "address", a.httpServer.Addr, "broker", a.broker, "mode", a.mode)

		if err := a.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen and serve http server", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sig)

		select {
		case s := <-sig:
			slog.Info("termination signal received", "signal", s.String())
			a.cancel()
		case <-a.ctx.Done():
			slog.Info("mode job finished", "mode", a.mode)
		}

		close(terminate)
	}()

	return terminate
}

// Serve runs the HTTP server on l. Used by tests that need a random port.
func (a *App) Serve(l net.Listener) <-chan error {
	errs := make(chan error, 1)

	go func() {
		errs <- a.httpServer.Serve(l)
		close(errs)
	}()

	return errs
}

// Stop shuts down in dependency order: HTTP intake first so no new publishes
// arrive, then mode jobs, then in-flight deliveries, then the closers.
func (a *App) Stop(ctx context.Context) {
	a.cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to close resources", "name", "HTTP Server", "error", err)
	}

	if err := a.goroutine.Stop(ctx); err != nil {
		slog.ErrorContext(ctx, "mode job ended with error", "mode", a.mode, "error", err)
	}

	if err := a.sender.Flush(ctx); err != nil {
		slog.WarnContext(ctx, "pending deliveries not confirmed before shutdown", "error", err)
	}

	for _, c := range a.closers {
		if err := c.fn(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to close resources", "name", c.name, "error", err)
		}
	}

	slog.InfoContext(ctx, "application stopped", "receiver", a.receiver.State().String())
}

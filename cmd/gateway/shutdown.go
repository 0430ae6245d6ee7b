package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avagate/internal/gateway"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// runGateway starts serving and blocks until a signal, a serving error
// or a fatal handler error. It returns the process exit code.
func runGateway(app *application) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return serve(context.Background(), app, sigCh)
}

func serve(ctx context.Context, app *application, sigCh <-chan os.Signal) int {
	logger := app.logger

	app.limiter.Start()
	if err := app.gateway.Start(ctx); err != nil {
		logger.Error("failed to start gateway", observability.Error(err))
		app.close(ctx)
		return 1
	}

	code := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-app.gateway.Errors():
		logger.Error("gateway stopped serving", observability.Error(err))
		code = 1
	case err := <-app.fatal:
		logger.Error("fatal error, shutting down", observability.Error(err))
		code = 1
	}

	shutdown(ctx, app)
	return code
}

// shutdown drains the gateway, then releases the remaining components.
func shutdown(ctx context.Context, app *application) {
	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = gateway.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if app.gateway.State() == gateway.StateRunning {
		if err := app.gateway.Stop(shutdownCtx); err != nil {
			app.logger.Error("failed to stop gateway gracefully", observability.Error(err))
		}
	}
	app.close(shutdownCtx)
	app.logger.Info("gateway stopped")
}

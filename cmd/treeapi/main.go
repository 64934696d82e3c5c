// Command treeapi runs the tree management HTTP service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AndreyMensh/TreeManagementApi/internal/core"
	"github.com/AndreyMensh/TreeManagementApi/internal/httpapi"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultPort = "8080"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []core.ServiceOption{
		core.WithLogger(core.NewSlogLogger(logger)),
		core.WithMetricsRecorder(httpapi.NewPrometheusMetricsRecorder(prometheus.DefaultRegisterer)),
	}
	if tracePath := os.Getenv("TREEAPI_TRACE_PATH"); tracePath != "" {
		traceFile, err := os.OpenFile(tracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer traceFile.Close()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(traceFile)))
	}
	svc := core.NewService(store, opts...)

	port := os.Getenv("TREEAPI_PORT")
	if port == "" {
		port = defaultPort
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpapi.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formrunner/internal/config"
	"formrunner/internal/dispatch"
	"formrunner/internal/field"
	"formrunner/internal/prompt"
	"formrunner/internal/webserver"
)

const shutdownTimeout = 10 * time.Second

var errProcessingFailed = errors.New("processing failed")

func main() {
	configPath := flag.String("config", "formrunner.toml", "form definition (.toml, .yaml or .yml)")
	addr := flag.String("addr", "", "listen address, overrides the config file and "+config.EnvAddr)
	promptMode := flag.Bool("prompt", false, "fill in the form on the terminal instead of serving it")
	flag.Parse()

	err := run(*configPath, *addr, *promptMode)
	if errors.Is(err, errProcessingFailed) || prompt.IsAborted(err) {
		os.Exit(1)
	}

	if err != nil {
		slog.Error("formrunner failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, promptMode bool) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	file, err := config.Load(configPath)
	if err != nil {
		return err
	}

	file.ApplyEnv(os.LookupEnv)

	if addr != "" {
		file.Addr = addr
	}

	level, err := file.Level()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := file.ServerConfig(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if promptMode {
		return runPrompt(ctx, cfg)
	}

	return serve(ctx, file.ListenAddr(), cfg)
}

func runPrompt(ctx context.Context, cfg webserver.Config) error {
	if err := field.Validate(cfg.Fields); err != nil {
		return fmt.Errorf("invalid fields: %w", err)
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Command:      cfg.Command,
		Timeout:      cfg.Timeout,
		Dir:          cfg.WorkDir,
		Env:          cfg.Env,
		Handler:      cfg.Handler,
		ErrorHandler: cfg.ErrorHandler,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return err
	}

	runner := &prompt.Runner{
		Title:      cfg.Title,
		Fields:     cfg.Fields,
		Dispatcher: dispatcher,
		Driver:     prompt.NewSurveyDriver(),
		Out:        os.Stdout,
		Logger:     cfg.Logger,
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if !result.OK() {
		return errProcessingFailed
	}

	return nil
}

func serve(ctx context.Context, addr string, cfg webserver.Config) error {
	srv, err := webserver.New(cfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		cfg.Logger.Info("Server started", "addr", addr, "title", cfg.Title)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("server startup error: %w", err)
	case <-ctx.Done():
	}

	cfg.Logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	return nil
}

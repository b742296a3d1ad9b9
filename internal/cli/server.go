package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/eligibility"
	"quiz-session-service/internal/metrics"
	transport "quiz-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := app.NewSessionService(b.sessions, b.quizzes, b.ledger, b.events, serviceOptions(cfg, logger, metrics.New(registry))...)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, transport.RouterConfig{
			Logger:      logger,
			CORSOrigins: cfg.Server.CORSOrigins,
			Gatherer:    registry,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz session service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func serviceOptions(cfg config.Config, logger *zap.Logger, recorder *metrics.Recorder) []app.Option {
	retry := app.DefaultRetryPolicy()
	retry.AutoSubmitRetries = cfg.Session.SubmitRetries
	retry.Interval = config.TTLDuration(cfg.Session.RetryInterval, retry.Interval)
	retry.Timeout = config.TTLDuration(cfg.Session.SubmitTimeout, retry.Timeout)

	return []app.Option{
		app.WithLogger(logger),
		app.WithMetrics(recorder),
		app.WithPolicy(eligibility.Policy{AllowRetakeAfterPass: cfg.Session.AllowRetakeAfterPass}),
		app.WithRetryPolicy(retry),
		app.WithTickInterval(config.TTLDuration(cfg.Session.Tick, time.Second)),
	}
}

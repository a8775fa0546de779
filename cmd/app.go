package cmd

import (
	"context"
	"log/slog"
	"os"
	osignal "os/signal"
	"time"

	"github.com/S4tyendra/public-vc/internal/application/config"
	"github.com/S4tyendra/public-vc/internal/application/constant"
	"github.com/S4tyendra/public-vc/internal/application/metric"
	"github.com/S4tyendra/public-vc/internal/infra/adapters/postgres"
	"github.com/S4tyendra/public-vc/internal/infra/adapters/postgres/repository"
	"github.com/S4tyendra/public-vc/internal/infra/ports/http/handlers"
	"github.com/S4tyendra/public-vc/internal/infra/ports/http/server"
	"github.com/S4tyendra/public-vc/internal/signal"
)

func runApp() {
	ctx, cancel := osignal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	level := slog.LevelInfo

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	userRepo := repository.NewUserRepo(dbConn)
	roomRepo := repository.NewRoomRepo(dbConn)

	registry := signal.NewRegistry()
	router := signal.NewRouter(registry, roomRepo)

	userHandler := handlers.NewUserHandler(userRepo)
	roomHandler := handlers.NewRoomHandler(cfg, roomRepo, registry, router)
	wsHandler := handlers.NewWebSocketHandler(cfg, router)

	echoSrv := server.New(userHandler, roomHandler, wsHandler)

	metricsSrv := metric.NewServer()

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}

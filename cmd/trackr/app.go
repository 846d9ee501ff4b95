package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/rs/zerolog"

	"github.com/deppfellow/trackr/internal/config"
	"github.com/deppfellow/trackr/internal/database"
	"github.com/deppfellow/trackr/internal/logger"
	"github.com/deppfellow/trackr/internal/repository"
	"github.com/deppfellow/trackr/internal/server"
	"github.com/deppfellow/trackr/internal/service"
)

const shutdownTimeout = 30 * time.Second

// app is everything a command needs once configuration is loaded.
type app struct {
	cfg           *config.Config
	log           zerolog.Logger
	loggerService *logger.LoggerService
	server        *server.Server
	services      *service.Services
}

func loadConfig() (*config.Config, *logger.LoggerService, zerolog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	loggerService := logger.NewLoggerService(cfg.Observability)
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)
	return cfg, loggerService, log, nil
}

// newApp connects storage and builds the service graph. Migrations run
// first outside local environments.
func newApp(ctx context.Context) (*app, error) {
	cfg, loggerService, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Primary.Env != "local" {
		if err := database.Migrate(ctx, &log, cfg); err != nil {
			loggerService.Shutdown()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	clerk.SetKey(cfg.Auth.SecretKey)

	srv, err := server.New(cfg, &log, loggerService)
	if err != nil {
		loggerService.Shutdown()
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	services, err := service.NewServices(srv, repository.NewRepositories(srv))
	if err != nil {
		loggerService.Shutdown()
		return nil, fmt.Errorf("could not create services: %w", err)
	}
	services.RegisterJobs(srv.Job)

	return &app{cfg: cfg, log: log, loggerService: loggerService, server: srv, services: services}, nil
}

func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("server forced to shutdown")
	}
	a.loggerService.Shutdown()
	a.log.Info().Msg("server exited properly")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

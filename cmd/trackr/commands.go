package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/deppfellow/trackr/internal/database"
	"github.com/deppfellow/trackr/internal/handler"
	"github.com/deppfellow/trackr/internal/middleware"
	"github.com/deppfellow/trackr/internal/router"
)

func serveCmd() *cobra.Command {
	var noWorkers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			handlers, err := handler.NewHandlers(a.server, a.services)
			if err != nil {
				return err
			}
			mw := middleware.NewMiddlewares(a.server, a.services)
			a.server.SetupHTTPServer(router.NewRouter(handlers, mw))

			if !noWorkers {
				if err := a.server.Job.Start(); err != nil {
					return err
				}
			}

			errCh := make(chan error, 1)
			go func() {
				if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve HTTP only, leave tasks to a separate worker process")
	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.shutdown()

			if err := a.server.Job.Start(); err != nil {
				return err
			}
			a.log.Info().Msg("workers started")
			<-ctx.Done()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loggerService, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer loggerService.Shutdown()

			return database.Migrate(context.Background(), &log, cfg)
		},
	}
}
